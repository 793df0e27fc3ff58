package domain

import "time"

const (
	AuthProviderLocal  = "local"
	AuthProviderGoogle = "google"
)

type User struct {
	UserID           string     `json:"id" dynamodbav:"user_id"`
	Username         string     `json:"username" dynamodbav:"username"`
	Email            string     `json:"email" dynamodbav:"email"`
	EmailVerified    bool       `json:"email_verified" dynamodbav:"email_verified"`
	Phone            *string    `json:"phone" dynamodbav:"phone"`
	PhoneVerified    bool       `json:"phone_verified" dynamodbav:"phone_verified"`
	PasswordHash     string     `json:"-" dynamodbav:"password_hash"`
	TOTPSecret       string     `json:"-" dynamodbav:"totp_secret"`
	RecoveryCodeHash string     `json:"-" dynamodbav:"recovery_code_hash"`
	AuthProvider     string     `json:"auth_provider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub        string     `json:"-" dynamodbav:"google_sub,omitempty"`                // sparse GSI key
	DeletedAt        *time.Time `json:"deleted_at,omitempty" dynamodbav:"deleted_at"`
	CreatedAt        time.Time  `json:"created" dynamodbav:"created_at"`
	UpdatedAt        time.Time  `json:"updated" dynamodbav:"updated_at"`
}

// Registered2FA reports whether the user has a TOTP key on file.
func (u *User) Registered2FA() bool {
	return u.TOTPSecret != ""
}

// Deleted reports whether the account has been anonymized.
func (u *User) Deleted() bool {
	return u.DeletedAt != nil
}

type SignupRequest struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	Username string `json:"username" validate:"required,min=3,max=31,alphanum"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PhoneRequest struct {
	Phone string `json:"phone" validate:"required,e164"`
}
