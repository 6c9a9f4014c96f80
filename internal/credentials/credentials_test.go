package credentials

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestStatic(t *testing.T) {
	secret, err := Static("5Jsecret").Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5Jsecret", secret)

	_, err = Static("").Secret(context.Background())
	require.ErrorIs(t, err, ErrEmptySecret)
}

func TestFromEnvPrefersValue(t *testing.T) {
	called := false
	fallback := SourceFunc(func(context.Context) (string, error) {
		called = true
		return "prompted", nil
	})

	secret, err := FromEnv("from-env", fallback).Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "from-env", secret)
	assert.False(t, called)

	secret, err = FromEnv("", fallback).Secret(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "prompted", secret)
	assert.True(t, called)
}

func TestPromptHonorsCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := &Prompt{Label: "key:", In: os.Stdin, Out: os.Stderr}
	_, err := p.Secret(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestPromptFailsWithoutTerminal(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	devNull, err := os.OpenFile(os.DevNull, os.O_WRONLY, 0)
	require.NoError(t, err)
	defer devNull.Close()

	p := &Prompt{Label: "key:", In: r, Out: devNull}
	_, err = p.Secret(context.Background())
	require.Error(t, err)
}
