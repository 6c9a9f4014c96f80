// Package credentials supplies secrets (the creator's active key, a new
// account's master password) to the workflows without them reading the
// environment or the terminal themselves.
package credentials

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

var ErrEmptySecret = errors.New("empty secret")

// Source yields one secret on demand
type Source interface {
	Secret(ctx context.Context) (string, error)
}

// SourceFunc adapts a function to Source
type SourceFunc func(ctx context.Context) (string, error)

func (f SourceFunc) Secret(ctx context.Context) (string, error) {
	return f(ctx)
}

// Static always returns the same secret
type Static string

func (s Static) Secret(context.Context) (string, error) {
	if s == "" {
		return "", ErrEmptySecret
	}
	return string(s), nil
}

// Prompt reads a secret from a terminal without echoing it
type Prompt struct {
	Label string
	In    *os.File
	Out   io.Writer
}

// NewPrompt prompts on stderr and reads from stdin
func NewPrompt(label string) *Prompt {
	return &Prompt{Label: label, In: os.Stdin, Out: os.Stderr}
}

func (p *Prompt) Secret(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	fmt.Fprintln(p.Out, p.Label)
	secret, err := term.ReadPassword(int(p.In.Fd()))
	fmt.Fprintln(p.Out)
	if err != nil {
		return "", fmt.Errorf("failed to read secret: %w", err)
	}
	s := strings.TrimSpace(string(secret))
	if s == "" {
		return "", ErrEmptySecret
	}
	return s, nil
}

// FromEnv returns value as a Static source when it is set, otherwise fallback
func FromEnv(value string, fallback Source) Source {
	if value != "" {
		return Static(value)
	}
	return fallback
}
