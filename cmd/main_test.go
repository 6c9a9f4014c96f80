package main

import (
	"bytes"
	"context"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/kkkkikiki/infestor/internal/config"
)

func testConfig(t *testing.T, env map[string]string) *config.Config {
	t.Helper()
	cfg, err := config.LoadFrom(context.Background(), envconfig.MapLookuper(env))
	require.NoError(t, err)
	return cfg
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := versionCommand()
	cmd.SetOut(&out)
	cmd.SetArgs(nil)

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), programName+" "+version)
}

func TestNewEnvDefaultsCreatorFromConfig(t *testing.T) {
	cfg := testConfig(t, map[string]string{
		"INFESTOR_CREATOR_ACCOUNT": "emrebeyler",
		"DB_DSN":                   ":memory:",
	})

	env, cleanup, err := newEnv(context.Background(), cfg, zap.NewNop(), "", true)
	require.NoError(t, err)
	defer cleanup()

	assert.Equal(t, "emrebeyler", env.Creator)
	assert.NotNil(t, env.Store)
	assert.NoError(t, requireCreator(env))

	env, cleanup, err = newEnv(context.Background(), cfg, zap.NewNop(), "someone", false)
	require.NoError(t, err)
	defer cleanup()
	assert.Equal(t, "someone", env.Creator)
	assert.Nil(t, env.Store)
}

func TestRequireCreator(t *testing.T) {
	env, cleanup, err := newEnv(context.Background(), testConfig(t, nil), zap.NewNop(), "", false)
	require.NoError(t, err)
	defer cleanup()

	assert.Error(t, requireCreator(env))
}

func TestNewEnvRejectsBadChainID(t *testing.T) {
	cfg := testConfig(t, map[string]string{"INFESTOR_CHAIN_ID": "beef"})

	_, _, err := newEnv(context.Background(), cfg, zap.NewNop(), "", false)
	assert.Error(t, err)
}

func TestSessionSecret(t *testing.T) {
	secret, err := sessionSecret("configured", zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []byte("configured"), secret)

	a, err := sessionSecret("", zap.NewNop())
	require.NoError(t, err)
	b, err := sessionSecret("", zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
}

func TestSecureCookie(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want bool
	}{
		{name: "local development", env: nil, want: false},
		{name: "https site", env: map[string]string{"INFESTOR_SITE_URL": "https://infestor.example"}, want: true},
		{name: "production", env: map[string]string{"APP_ENVIRONMENT": "production"}, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, secureCookie(testConfig(t, tt.env)))
		})
	}
}

func TestClaimAccountMinimumRCIsWholePercent(t *testing.T) {
	cmd := claimAccountCommand()

	require.NoError(t, cmd.Flags().Set("minimum-rc", "12"))
	minimumRC, err := cmd.Flags().GetInt("minimum-rc")
	require.NoError(t, err)
	assert.Equal(t, 12, minimumRC)

	assert.Error(t, cmd.Flags().Set("minimum-rc", "12.5"))
}
