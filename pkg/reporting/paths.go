package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultPathManager implements path management functionality
type DefaultPathManager struct {
	root string
}

// NewDefaultPathManager creates a path manager rooted at "results"
func NewDefaultPathManager() *DefaultPathManager {
	return &DefaultPathManager{root: "results"}
}

// NewPathManager creates a path manager rooted at root
func NewPathManager(root string) *DefaultPathManager {
	if root == "" {
		return NewDefaultPathManager()
	}
	return &DefaultPathManager{root: root}
}

// GetDefaultOutputDir returns <root>/<SYMBOL>_<interval>
func (p *DefaultPathManager) GetDefaultOutputDir(symbol, interval string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	i := strings.ToLower(strings.TrimSpace(interval))
	if s == "" {
		s = "UNKNOWN"
	}
	if i == "" {
		i = "unknown"
	}

	return filepath.Join(p.root, fmt.Sprintf("%s_%s", s, i))
}

// EnsureDirectoryExists creates the parent directory of path
func (p *DefaultPathManager) EnsureDirectoryExists(path string) error {
	return ensureParentDir(path)
}

// DefaultOutputDir is GetDefaultOutputDir under "results"
func DefaultOutputDir(symbol, interval string) string {
	return NewDefaultPathManager().GetDefaultOutputDir(symbol, interval)
}

func ensureParentDir(path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		return os.MkdirAll(dir, 0755)
	}
	return nil
}
