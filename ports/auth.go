package ports

import (
	"context"
	"net/http"
)

// TokenProvider fetches the bearer credential for the model endpoint. cookies
// are the browser's cookies, forwarded to credential endpoints that need them.
// An empty token is reported as AUTH_MISSING.
type TokenProvider interface {
	Token(ctx context.Context, cookies []*http.Cookie) (string, error)
}
