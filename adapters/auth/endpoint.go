package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"hypoforge/internal/errors"
)

// EndpointToken fetches the credential from an HTTP endpoint that identifies
// the user by the cookies their browser sent. The endpoint answers with
// {"token": "..."}; an empty token means the user is not logged in.
type EndpointToken struct {
	URL    string
	client *http.Client
}

func NewEndpointToken(tokenURL string, client *http.Client) *EndpointToken {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &EndpointToken{URL: tokenURL, client: client}
}

func (t *EndpointToken) Token(ctx context.Context, cookies []*http.Cookie) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.URL, nil)
	if err != nil {
		return "", errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("invalid token URL %q: %w", t.URL, err))
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return "", errors.ExternalServiceError("credential", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return "", errors.AuthMissing("credential endpoint rejected the session")
	}
	if resp.StatusCode != http.StatusOK {
		excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return "", errors.ExternalServiceError("credential",
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(excerpt))))
	}

	var body struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", errors.ExternalServiceError("credential", fmt.Errorf("malformed response: %w", err))
	}
	if body.Token == "" {
		return "", errors.AuthMissing("not logged in")
	}
	log.Printf("[Auth] Fetched credential from %s", t.URL)
	return body.Token, nil
}

// LoginURL appends the page to return to after login
func LoginURL(loginURL, next string) string {
	if loginURL == "" {
		return ""
	}
	sep := "?"
	if strings.Contains(loginURL, "?") {
		sep = "&"
	}
	return loginURL + sep + "next=" + url.QueryEscape(next)
}
