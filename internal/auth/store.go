package auth

import "context"

// Store describes persistence required by the session core. Users and admins
// live in separate namespaces with independent username uniqueness.
type Store interface {
	Users(ctx context.Context) PrincipalStore
	Admins(ctx context.Context) PrincipalStore
}

// PrincipalStore manages one principal namespace.
//
// RotateRefreshToken is the compare-and-swap at the heart of rotation: the
// write succeeds only while the stored refresh token still equals `presented`,
// so of two concurrent redemptions of the same token exactly one wins. It
// returns ErrUnauthorized when the stored value has moved on (or the
// principal is gone).
type PrincipalStore interface {
	Create(ctx context.Context, p *Principal) error
	Find(ctx context.Context, id string) (*Principal, error)
	FindByUsername(ctx context.Context, username string) (*Principal, error)
	SetRefreshToken(ctx context.Context, id string, token *string) error
	RotateRefreshToken(ctx context.Context, id, presented, next string) error
}
