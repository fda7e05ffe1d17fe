package auth

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"hypoforge/internal/errors"

	"github.com/fsnotify/fsnotify"
)

// FileToken is a credential backed by a file. The file is watched and re-read
// whenever it is written or replaced, so a rotated token is picked up without
// a restart.
type FileToken struct {
	path    string
	mutex   sync.RWMutex
	token   string
	watcher *fsnotify.Watcher
}

func NewFileToken(filename string) (*FileToken, error) {
	path, err := filepath.Abs(filename)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, err)
	}

	value, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithCode(errors.CodeConfigInvalid, fmt.Errorf("failed to read token file: %w", err))
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create token file watcher")
	}

	t := &FileToken{
		path:    path,
		token:   strings.TrimSpace(string(value)),
		watcher: watcher,
	}

	// the directory is watched so that atomic replaces (rename over) are seen
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, errors.Wrap(err, "failed to watch token file")
	}
	go t.watch()

	return t, nil
}

func (t *FileToken) watch() {
	for {
		select {
		case event, ok := <-t.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != t.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				t.reload()
			}
		case err, ok := <-t.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[Auth] Token file watcher error: %v", err)
		}
	}
}

func (t *FileToken) reload() {
	value, err := os.ReadFile(t.path)
	if err != nil {
		return
	}
	t.mutex.Lock()
	t.token = strings.TrimSpace(string(value))
	t.mutex.Unlock()
	log.Printf("[Auth] Reloaded token from %s", t.path)
}

func (t *FileToken) Token(ctx context.Context, _ []*http.Cookie) (string, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.token == "" {
		return "", errors.AuthMissing(fmt.Sprintf("token file %s is empty", t.path))
	}
	return t.token, nil
}

// Close stops watching the file
func (t *FileToken) Close() error {
	return t.watcher.Close()
}
