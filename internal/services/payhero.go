package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/example/amexan/internal/config"
)

// PayHero prompts time out on the handset side well under this bound.
const gatewayTimeout = 30 * time.Second

// StkPushRequest describes one M-Pesa STK push. BookingID is sent verbatim
// as the external_reference, the sole correlation key the callback echoes
// back.
type StkPushRequest struct {
	Amount      int64
	Phone       string
	BookingID   string
	PayerName   string
	Description string
}

// StkPushResult carries the gateway's tracking reference, if one could be
// found, plus the verbatim response body.
type StkPushResult struct {
	Reference string
	Body      json.RawMessage
}

// StkGateway is the push-payment gateway contract.
type StkGateway interface {
	Configured() bool
	Push(ctx context.Context, req StkPushRequest) (*StkPushResult, error)
}

// PayHeroClient talks to the PayHero payments API.
type PayHeroClient struct {
	http        *resty.Client
	channelID   int
	callbackURL string
	configured  bool
}

// NewPayHeroClient builds a client from gateway configuration.
func NewPayHeroClient(cfg *config.Config) *PayHeroClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.PayHeroBaseURL, "/")).
		SetTimeout(gatewayTimeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetHeader("Authorization", buildAuthHeader(cfg.PayHeroAuth))

	return &PayHeroClient{
		http:        client,
		channelID:   cfg.PayHeroChannelID,
		callbackURL: cfg.PayHeroCallbackURL,
		configured:  cfg.GatewayConfigured(),
	}
}

// WithTimeout overrides the request timeout.
func (c *PayHeroClient) WithTimeout(d time.Duration) *PayHeroClient {
	c.http.SetTimeout(d)
	return c
}

// Configured reports whether all gateway settings are present.
func (c *PayHeroClient) Configured() bool {
	return c.configured
}

type stkPushPayload struct {
	Amount            int64  `json:"amount"`
	PhoneNumber       string `json:"phone_number"`
	ChannelID         int    `json:"channel_id"`
	Provider          string `json:"provider"`
	ExternalReference string `json:"external_reference"`
	CustomerName      string `json:"customer_name"`
	Description       string `json:"description"`
	CallbackURL       string `json:"callback_url"`
}

// Push sends the STK prompt to the payer's phone. Errors are always
// *PaymentError: GatewayUnreachable for transport failures,
// GatewayRejected for non-2xx responses.
func (c *PayHeroClient) Push(ctx context.Context, req StkPushRequest) (*StkPushResult, error) {
	if !c.configured {
		return nil, &PaymentError{Kind: KindMisconfiguredGateway, Message: "payment gateway is not configured"}
	}

	payload := stkPushPayload{
		Amount:            req.Amount,
		PhoneNumber:       req.Phone,
		ChannelID:         c.channelID,
		Provider:          "m-pesa",
		ExternalReference: req.BookingID,
		CustomerName:      req.PayerName,
		Description:       "AMEXAN: " + req.Description,
		CallbackURL:       c.callbackURL,
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(payload).
		Post("/payments")
	if err != nil {
		return nil, &PaymentError{
			Kind:    KindGatewayUnreachable,
			Message: fmt.Sprintf("could not reach PayHero: %v", err),
		}
	}

	body := resp.Body()
	if resp.IsError() {
		return nil, &PaymentError{
			Kind:    KindGatewayRejected,
			Message: gatewayErrorMessage(body, resp.StatusCode()),
			Raw:     rawGatewayBody(body),
		}
	}

	// A 2xx with a non-JSON body (load balancer error page, maintenance
	// HTML) is not an accepted push.
	if !json.Valid(body) {
		return nil, &PaymentError{
			Kind:    KindGatewayRejected,
			Message: fmt.Sprintf("PayHero returned a non-JSON body with status %d", resp.StatusCode()),
			Raw:     rawGatewayBody(body),
		}
	}

	return &StkPushResult{
		Reference: ExtractReference(body),
		Body:      json.RawMessage(body),
	}, nil
}

// rawGatewayBody preserves the gateway body on an error so it stays
// marshalable downstream: verbatim when it is JSON, quoted otherwise.
func rawGatewayBody(body []byte) json.RawMessage {
	if len(body) == 0 {
		return nil
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, err := json.Marshal(string(body))
	if err != nil {
		return nil
	}
	return quoted
}

// PayHero has returned its tracking reference under all of these keys
// across versions and environments, flat or nested under "data".
var referenceKeys = []string{"reference", "CheckoutRequestID", "checkout_request_id"}

// ExtractReference pulls the tracking reference out of a gateway response,
// checking the candidate keys in order. Returns "" when none is present;
// the booking id alone is still sufficient for reconciliation.
func ExtractReference(body []byte) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}

	nested, _ := payload["data"].(map[string]any)
	for _, key := range referenceKeys {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	for _, key := range referenceKeys {
		if v, ok := nested[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

func gatewayErrorMessage(body []byte, status int) string {
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err == nil {
		for _, key := range []string{"message", "error", "detail"} {
			if v, ok := payload[key].(string); ok && v != "" {
				return v
			}
		}
	}
	return fmt.Sprintf("PayHero error %d", status)
}

// buildAuthHeader accepts the credential in any of the three formats it has
// been stored in: a complete "Basic <b64>" header, a raw "user:pass" pair,
// or a bare base64 token.
func buildAuthHeader(raw string) string {
	raw = strings.TrimSpace(raw)
	switch {
	case raw == "":
		return ""
	case strings.HasPrefix(raw, "Basic "):
		return raw
	case strings.Contains(raw, ":"):
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
	default:
		return "Basic " + raw
	}
}
