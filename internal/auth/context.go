package auth

import (
	"context"

	"github.com/af-corp/protobridge/internal/types"
)

type contextKey string

const authContextKey contextKey = "protobridge_auth"

// AuthInfo holds authenticated identity information extracted from an API key.
type AuthInfo struct {
	KeyID                string
	ClientID             string
	AllowedProtocols     []string
	RPMLimit             *int
	DailyConversionLimit *int
}

// Allows reports whether the key may convert between source and target.
func (a *AuthInfo) Allows(source, target types.Descriptor) bool {
	return ProtocolAllowed(a.AllowedProtocols, source) && ProtocolAllowed(a.AllowedProtocols, target)
}

func ContextWithAuth(ctx context.Context, info *AuthInfo) context.Context {
	return context.WithValue(ctx, authContextKey, info)
}

func AuthFromContext(ctx context.Context) (*AuthInfo, bool) {
	info, ok := ctx.Value(authContextKey).(*AuthInfo)
	return info, ok
}
