package validate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type form struct {
	Email    string `json:"email" validate:"required,email"`
	Username string `json:"username" validate:"required,min=3"`
	Phone    string `json:"phone,omitempty" validate:"omitempty,e164"`
}

func TestStruct(t *testing.T) {
	assert.Nil(t, Struct(form{Email: "a@b.co", Username: "alice"}))

	fields := Struct(form{Email: "nope", Username: "al", Phone: "123"})
	assert.Equal(t, map[string]string{
		"email":    "Invalid email",
		"username": "Must be at least 3 characters",
		"phone":    "Invalid phone number",
	}, fields)

	fields = Struct(form{})
	assert.Equal(t, "This field is required", fields["email"])
	assert.Equal(t, "This field is required", fields["username"])
}
