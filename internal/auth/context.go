package auth

import "context"

type principalContextKey struct{}

type principalRef struct {
	id   string
	kind Kind
}

// ContextWithPrincipal attaches the authenticated principal id and kind to
// the context. The request gate resolves these from the access token alone.
func ContextWithPrincipal(ctx context.Context, id string, kind Kind) context.Context {
	return context.WithValue(ctx, principalContextKey{}, principalRef{id: id, kind: kind})
}

// PrincipalFromContext extracts the authenticated principal id and kind.
func PrincipalFromContext(ctx context.Context) (string, Kind, bool) {
	if ctx == nil {
		return "", "", false
	}
	ref, ok := ctx.Value(principalContextKey{}).(principalRef)
	if !ok || ref.id == "" {
		return "", "", false
	}
	return ref.id, ref.kind, true
}
