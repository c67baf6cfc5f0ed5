package auth

import "net/mail"

const (
	minUsernameLen = 5
	minPasswordLen = 5
)

// ValidateUsername requires an email-shaped username of at least five
// characters. The address must be bare (no display name).
func ValidateUsername(username string) error {
	if len(username) < minUsernameLen {
		return ErrInvalidInput
	}
	addr, err := mail.ParseAddress(username)
	if err != nil || addr.Address != username || addr.Name != "" {
		return ErrInvalidInput
	}
	return nil
}

// ValidatePassword requires at least five characters.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLen {
		return ErrInvalidInput
	}
	return nil
}
