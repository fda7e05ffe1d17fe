package auth

import (
	"context"
	"net/http"
	"strings"

	"hypoforge/internal/errors"
)

// StaticToken serves a fixed credential, usually LLM_API_KEY
type StaticToken struct {
	token string
}

func NewStaticToken(token string) *StaticToken {
	return &StaticToken{token: strings.TrimSpace(token)}
}

func (t *StaticToken) Token(ctx context.Context, _ []*http.Cookie) (string, error) {
	if t.token == "" {
		return "", errors.AuthMissing("no API key configured")
	}
	return t.token, nil
}
