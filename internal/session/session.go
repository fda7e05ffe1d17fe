package session

import (
	"context"
	"net/http"
	"sync"
	"time"

	"hypoforge/domain/dataset"
	"hypoforge/models"
	"hypoforge/ports"

	"github.com/google/uuid"
)

// Selection is one chosen dataset with its summary and hypothesis board. Its
// context ends when another dataset is selected.
type Selection struct {
	DemoIndex int
	Demo      models.Demo
	Dataset   *dataset.Dataset
	Summary   string
	Board     *Board

	ctx    context.Context
	cancel context.CancelFunc
}

// Done is closed once the selection has been replaced
func (sel *Selection) Done() <-chan struct{} {
	return sel.ctx.Done()
}

// Bind derives a context that ends with parent or with the selection,
// whichever comes first
func (sel *Selection) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	stop := context.AfterFunc(sel.ctx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

// Session is one browser's state: the credential, fetched once, and the
// current selection
type Session struct {
	ID        uuid.UUID
	CreatedAt time.Time

	mu         sync.Mutex
	credMu     sync.Mutex
	credential string
	selection  *Selection
	lastSeen   time.Time
}

func newSession(id uuid.UUID) *Session {
	now := time.Now()
	return &Session{ID: id, CreatedAt: now, lastSeen: now}
}

// Credential returns the cached credential or fetches it from provider. A
// failed fetch is not cached, so the next request retries after login.
func (s *Session) Credential(ctx context.Context, provider ports.TokenProvider, cookies []*http.Cookie) (string, error) {
	if token := s.cachedCredential(); token != "" {
		return token, nil
	}

	// credMu serializes fetches; s.mu is never held across the provider call
	s.credMu.Lock()
	defer s.credMu.Unlock()
	if token := s.cachedCredential(); token != "" {
		return token, nil
	}
	token, err := provider.Token(ctx, cookies)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.credential = token
	s.mu.Unlock()
	return token, nil
}

func (s *Session) cachedCredential() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credential
}

// SelectDataset makes ds the current selection with a fresh board. Streams
// and tests bound to the previous selection are canceled.
func (s *Session) SelectDataset(demoIndex int, demo models.Demo, ds *dataset.Dataset, summary string) *Selection {
	ctx, cancel := context.WithCancel(context.Background())
	sel := &Selection{
		DemoIndex: demoIndex,
		Demo:      demo,
		Dataset:   ds,
		Summary:   summary,
		Board:     NewBoard(),
		ctx:       ctx,
		cancel:    cancel,
	}

	s.mu.Lock()
	prev := s.selection
	s.selection = sel
	s.mu.Unlock()

	if prev != nil {
		prev.cancel()
	}
	return sel
}

// Current returns the current selection
func (s *Session) Current() (*Selection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection, s.selection != nil
}

// Close cancels everything bound to the session
func (s *Session) Close() {
	s.mu.Lock()
	sel := s.selection
	s.selection = nil
	s.mu.Unlock()
	if sel != nil {
		sel.cancel()
	}
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastSeen = time.Now()
	s.mu.Unlock()
}

func (s *Session) idleSince() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}
