package prompt

import (
	"errors"
	"os"
	"strings"
	"sync"
	"time"
)

// DefaultRole opens every prompt unless an operator supplies a role file.
const DefaultRole = `You are a ghostwriter for private messaging. You draft replies that the user will send to their conversation partner as if they wrote them themselves.
Write in the user's own voice, never as an assistant, and never mention that the text was generated.`

// RoleSource supplies the role/identity section of the prompt.
type RoleSource interface {
	Load() (string, error)
}

// StaticRole is a fixed role text.
type StaticRole string

// Load returns the role, or DefaultRole when empty.
func (r StaticRole) Load() (string, error) {
	if s := strings.TrimSpace(string(r)); s != "" {
		return s, nil
	}
	return DefaultRole, nil
}

// RoleFile loads the role text from a file and reloads it when the file's
// modification time changes. A missing or empty file yields DefaultRole.
type RoleFile struct {
	path string

	mu       sync.RWMutex
	content  string
	modTime  time.Time
	notFound bool
}

// NewRoleFile creates a RoleFile for path.
func NewRoleFile(path string) *RoleFile {
	return &RoleFile{path: path}
}

// Load returns the current role text.
func (r *RoleFile) Load() (string, error) {
	info, err := os.Stat(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.markNotFound()
			return DefaultRole, nil
		}
		return "", err
	}
	modTime := info.ModTime()

	r.mu.RLock()
	if !r.notFound && r.modTime.Equal(modTime) && r.content != "" {
		cached := r.content
		r.mu.RUnlock()
		return cached, nil
	}
	r.mu.RUnlock()

	data, err := os.ReadFile(r.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			r.markNotFound()
			return DefaultRole, nil
		}
		return "", err
	}
	content := strings.TrimSpace(string(data))
	if content == "" {
		r.markNotFound()
		return DefaultRole, nil
	}

	r.mu.Lock()
	r.content = content
	r.modTime = modTime
	r.notFound = false
	r.mu.Unlock()
	return content, nil
}

func (r *RoleFile) markNotFound() {
	r.mu.Lock()
	r.notFound = true
	r.content = ""
	r.modTime = time.Time{}
	r.mu.Unlock()
}
