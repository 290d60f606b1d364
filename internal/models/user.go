package models

const (
	RolePatient = "patient"
	RoleDoctor  = "doctor"
)

// User is a patient or doctor account.
type User struct {
	BaseModel
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Phone        string `gorm:"uniqueIndex" json:"phone"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Role         string `gorm:"default:patient" json:"role"`
	Specialty    string `json:"specialty,omitempty"`
}
