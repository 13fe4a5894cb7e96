package clipboard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/atotto/clipboard"
)

// ErrUnavailable is returned when no system clipboard utility can be used.
var ErrUnavailable = errors.New("system clipboard is unavailable")

// Clipboard copies text to and reads text from a clipboard.
type Clipboard interface {
	Copy(text string) error
	Paste() (string, error)
}

// System uses the operating system clipboard.
type System struct{}

func NewSystem() *System {
	return &System{}
}

// Available reports whether a clipboard backend was found on this machine.
func (s *System) Available() bool {
	return !clipboard.Unsupported
}

func (s *System) Copy(text string) error {
	if clipboard.Unsupported {
		return ErrUnavailable
	}
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to write clipboard: %w", err)
	}
	return nil
}

func (s *System) Paste() (string, error) {
	if clipboard.Unsupported {
		return "", ErrUnavailable
	}
	text, err := clipboard.ReadAll()
	if err != nil {
		return "", fmt.Errorf("failed to read clipboard: %w", err)
	}
	return text, nil
}

// Memory keeps the clipboard content in process, for headless runs and tests.
type Memory struct {
	mu   sync.Mutex
	text string
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Copy(text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.text = text
	return nil
}

func (m *Memory) Paste() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text, nil
}

// Default returns the system clipboard when a backend exists and the in-memory one otherwise.
func Default() Clipboard {
	if system := NewSystem(); system.Available() {
		return system
	}
	return NewMemory()
}
