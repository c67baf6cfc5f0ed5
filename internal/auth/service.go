package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// Service orchestrates the session lifecycle: credential checks, token
// issuance, and the single-active-refresh-token invariant per principal.
type Service struct {
	store   Store
	secrets Secrets
	now     func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithRefreshTTL configures refresh token lifetime.
func WithRefreshTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.refreshTTL = ttl
		}
		return nil
	}
}

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// NewService constructs Service. Both signing secrets must be present.
func NewService(store Store, secrets Secrets, opts ...ServiceOption) (*Service, error) {
	if len(secrets.Access) == 0 || len(secrets.Refresh) == 0 {
		return nil, errors.New("auth: signing secrets are not configured")
	}
	svc := &Service{
		store:      store,
		secrets:    secrets,
		now:        time.Now,
		accessTTL:  defaultAccessTTL,
		refreshTTL: defaultRefreshTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

func (s *Service) namespace(ctx context.Context, kind Kind) PrincipalStore {
	if kind == KindAdmin {
		return s.store.Admins(ctx)
	}
	return s.store.Users(ctx)
}

// SignUp validates credentials, creates the principal with no live refresh
// token, and mints the first token pair.
func (s *Service) SignUp(ctx context.Context, kind Kind, username, password, displayName string) (*Principal, TokenPair, error) {
	if !kind.Valid() {
		return nil, TokenPair{}, ErrInvalidInput
	}
	username = strings.TrimSpace(strings.ToLower(username))
	if err := ValidateUsername(username); err != nil {
		return nil, TokenPair{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, TokenPair{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, TokenPair{}, fmt.Errorf("hash password: %w", err)
	}

	ns := s.namespace(ctx, kind)
	p := &Principal{
		Kind:         kind,
		Username:     username,
		DisplayName:  strings.TrimSpace(displayName),
		PasswordHash: hash,
	}
	if err := ns.Create(ctx, p); err != nil {
		return nil, TokenPair{}, err
	}
	pair, err := s.mintPair(ctx, ns, p.ID, kind)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return p, pair, nil
}

// SignIn verifies the credential and mints a fresh rotated pair, overwriting
// any refresh token from an earlier session. Signing in elsewhere therefore
// invalidates that session's refresh token.
func (s *Service) SignIn(ctx context.Context, kind Kind, username, password string) (*Principal, TokenPair, error) {
	if !kind.Valid() {
		return nil, TokenPair{}, ErrInvalidInput
	}
	username = strings.TrimSpace(strings.ToLower(username))
	if err := ValidateUsername(username); err != nil {
		return nil, TokenPair{}, err
	}
	if err := ValidatePassword(password); err != nil {
		return nil, TokenPair{}, err
	}

	ns := s.namespace(ctx, kind)
	p, err := ns.FindByUsername(ctx, username)
	if err != nil {
		return nil, TokenPair{}, err
	}
	if err := VerifyPassword(p.PasswordHash, password); err != nil {
		return nil, TokenPair{}, ErrUnauthorized
	}
	pair, err := s.mintPair(ctx, ns, p.ID, kind)
	if err != nil {
		return nil, TokenPair{}, err
	}
	return p, pair, nil
}

// Refresh redeems a refresh token: the signature, the expiry, and equality
// with the stored value must all hold. The redeemed token is rotated away in
// the same step and cannot be reused.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := Verify(refreshToken, s.secrets.Refresh)
	if err != nil {
		return TokenPair{}, err
	}

	for _, ns := range s.candidates(ctx, claims.Kind) {
		p, err := ns.Find(ctx, claims.Subject)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return TokenPair{}, err
		}
		if p.RefreshToken == nil || *p.RefreshToken != refreshToken {
			continue
		}
		return s.rotatePair(ctx, ns, p.ID, p.Kind, refreshToken)
	}
	return TokenPair{}, ErrUnauthorized
}

// candidates resolves the namespaces to consult for a decoded token. Tokens
// minted by this service carry the kind claim; the two-namespace scan remains
// as a fallback for tokens issued before that claim existed.
func (s *Service) candidates(ctx context.Context, kind Kind) []PrincipalStore {
	if kind.Valid() {
		return []PrincipalStore{s.namespace(ctx, kind)}
	}
	return []PrincipalStore{s.store.Users(ctx), s.store.Admins(ctx)}
}

// Logout clears the stored refresh token, making every previously issued
// refresh token for the principal unredeemable. Idempotent.
func (s *Service) Logout(ctx context.Context, principalID string) error {
	for _, ns := range []PrincipalStore{s.store.Users(ctx), s.store.Admins(ctx)} {
		err := ns.SetRefreshToken(ctx, principalID, nil)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrNotFound) {
			return err
		}
	}
	return ErrNotFound
}

// Profile returns the principal record for an id the request gate resolved.
func (s *Service) Profile(ctx context.Context, principalID string) (*Principal, error) {
	for _, ns := range []PrincipalStore{s.store.Users(ctx), s.store.Admins(ctx)} {
		p, err := ns.Find(ctx, principalID)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Authenticate verifies an access token and returns the embedded principal
// identity. No store lookup: possession of a valid signature is the sole
// basis for per-request authorization within the access TTL.
func (s *Service) Authenticate(token string) (string, Kind, error) {
	claims, err := Verify(token, s.secrets.Access)
	if err != nil {
		return "", "", err
	}
	return claims.Subject, claims.Kind, nil
}

// mintPair issues a fresh pair and overwrites the stored refresh token.
func (s *Service) mintPair(ctx context.Context, ns PrincipalStore, principalID string, kind Kind) (TokenPair, error) {
	pair, err := s.issuePair(principalID, kind)
	if err != nil {
		return TokenPair{}, err
	}
	if err := ns.SetRefreshToken(ctx, principalID, &pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

// rotatePair issues a fresh pair and installs the new refresh token only if
// the presented one is still the live value.
func (s *Service) rotatePair(ctx context.Context, ns PrincipalStore, principalID string, kind Kind, presented string) (TokenPair, error) {
	pair, err := s.issuePair(principalID, kind)
	if err != nil {
		return TokenPair{}, err
	}
	if err := ns.RotateRefreshToken(ctx, principalID, presented, pair.RefreshToken); err != nil {
		return TokenPair{}, err
	}
	return pair, nil
}

func (s *Service) issuePair(principalID string, kind Kind) (TokenPair, error) {
	now := s.now()
	access, err := Issue(principalID, kind, s.secrets.Access, s.accessTTL, now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := Issue(principalID, kind, s.secrets.Refresh, s.refreshTTL, now)
	if err != nil {
		return TokenPair{}, fmt.Errorf("sign refresh token: %w", err)
	}
	return TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
