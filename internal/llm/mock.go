package llm

import (
	"context"
	"fmt"

	"shopassist/internal/domain"
)

// Mock answers without a network call. Useful offline and in tests.
type Mock struct {
	Prefix string
}

func NewMock(prefix string) *Mock { return &Mock{Prefix: prefix} }

// Generate echoes the last line of the prompt, which carries the action
// template after the persona preamble.
func (m *Mock) Generate(_ context.Context, history []domain.Turn, prompt string) (string, error) {
	return fmt.Sprintf("[%s] %s", m.Prefix, lastLine(prompt)), nil
}

func lastLine(s string) string {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == '\n' {
			return s[i+1:]
		}
	}
	return s
}
