// Package allowlist gates eligibility checks against a token list persisted
// as a JSON file.
package allowlist

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
)

type fileFormat struct {
	Users []string `json:"users"`
}

// List is a mutable allowlist backed by a JSON file. All mutations are
// written through immediately; the file is the source of truth across
// restarts.
type List struct {
	mu   sync.Mutex
	path string
}

// New returns an allowlist backed by path. The file is created empty if it
// does not exist.
func New(path string) (*List, error) {
	if path == "" {
		return nil, fmt.Errorf("allowlist path is required")
	}
	l := &List{path: path}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create allowlist dir: %w", err)
		}
		if err := l.save(fileFormat{Users: []string{}}); err != nil {
			return nil, err
		}
	} else if _, err := l.load(); err != nil {
		return nil, err
	}
	return l, nil
}

// Check reports whether token is on the list. Read failures are logged and
// treated as not eligible.
func (l *List) Check(token string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.load()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read allowlist")
		return false
	}
	return contains(data.Users, token)
}

// Add appends token to the list. Returns false if it was already present.
func (l *List) Add(token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.load()
	if err != nil {
		return false, err
	}
	if contains(data.Users, token) {
		return false, nil
	}
	data.Users = append(data.Users, token)
	if err := l.save(data); err != nil {
		return false, err
	}
	return true, nil
}

// Remove deletes token from the list. Returns false if it was not present.
func (l *List) Remove(token string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.load()
	if err != nil {
		return false, err
	}
	kept := data.Users[:0]
	found := false
	for _, user := range data.Users {
		if user == token {
			found = true
			continue
		}
		kept = append(kept, user)
	}
	if !found {
		return false, nil
	}
	data.Users = kept
	if err := l.save(data); err != nil {
		return false, err
	}
	return true, nil
}

func (l *List) load() (fileFormat, error) {
	raw, err := os.ReadFile(l.path)
	if err != nil {
		return fileFormat{}, fmt.Errorf("read allowlist: %w", err)
	}
	var data fileFormat
	if err := json.Unmarshal(raw, &data); err != nil {
		return fileFormat{}, fmt.Errorf("parse allowlist: %w", err)
	}
	return data, nil
}

func (l *List) save(data fileFormat) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode allowlist: %w", err)
	}
	if err := os.WriteFile(l.path, raw, 0o644); err != nil {
		return fmt.Errorf("write allowlist: %w", err)
	}
	return nil
}

func contains(users []string, token string) bool {
	for _, user := range users {
		if user == token {
			return true
		}
	}
	return false
}
