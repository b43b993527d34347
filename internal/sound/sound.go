package sound

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// Manager resolves the alert chime played when a new signal lands. A missing
// or unreadable file is not an error; the dashboard falls back to a
// synthesised beep.
type Manager struct {
	path      string
	url       string
	available bool
	hash      string
}

func NewManager(path string) (*Manager, error) {
	m := &Manager{path: path}
	fi, err := os.Stat(path)
	if err != nil || fi.IsDir() {
		return m, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return m, err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return m, err
	}
	sum := hex.EncodeToString(h.Sum(nil))[:16]
	m.hash = sum
	m.available = true
	// e.g., /sounds/ping.mp3?v=<hash>
	_, name := filepath.Split(path)
	m.url = fmt.Sprintf("/sounds/%s?v=%s", name, sum)
	return m, nil
}

func (m *Manager) Available() bool { return m.available }
func (m *Manager) URL() string     { return m.url }
func (m *Manager) Path() string    { return m.path }
func (m *Manager) Hash() string    { return m.hash }
