package auth

import "time"

// Kind distinguishes the two principal namespaces of the storefront.
type Kind string

const (
	KindUser  Kind = "user"
	KindAdmin Kind = "admin"
)

// Valid reports whether k is one of the known principal kinds.
func (k Kind) Valid() bool {
	return k == KindUser || k == KindAdmin
}

// Principal represents a storefront account, either a shopper or an admin.
// PasswordHash and RefreshToken never leave the server: the stored refresh
// token is the single live value whose equality gates redemption.
type Principal struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"name"`
	PasswordHash string    `json:"-"`
	RefreshToken *string   `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TokenPair represents the access and refresh tokens minted together.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}
