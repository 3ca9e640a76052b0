package codec

import (
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// Atomic counter for unique temp file names across goroutines.
var tempCounter atomic.Int64

// tool is an external libavif binary resolved once, on first use.
type tool struct {
	name string // default looked up in PATH
	path string // configured path; empty means name

	once     sync.Once
	resolved string
	version  string
}

func (t *tool) available() bool {
	t.once.Do(func() {
		name := t.path
		if name == "" {
			name = t.name
		}
		path, err := exec.LookPath(name)
		if err != nil {
			return
		}
		t.resolved = path
		if out, err := exec.Command(path, "--version").Output(); err == nil {
			t.version = firstLine(string(out))
		}
	})
	return t.resolved != ""
}

// writeTemp stores data in a new temp file and returns its path. The caller
// removes it.
func writeTemp(pattern string, data []byte) (string, error) {
	f, err := os.CreateTemp("", fmt.Sprintf(pattern, tempCounter.Add(1)))
	if err != nil {
		return "", fmt.Errorf("create temp: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp: %w", err)
	}
	return f.Name(), nil
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return strings.TrimSpace(s)
}
