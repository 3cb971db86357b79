package main

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appanalysis "github.com/bryanwahyu/mediscan/internal/application/analysis"
	"github.com/bryanwahyu/mediscan/internal/application/retry"
	"github.com/bryanwahyu/mediscan/internal/config"
	"github.com/bryanwahyu/mediscan/internal/domain/ai"
)

func TestRootCommands(t *testing.T) {
	root := newRootCmd()

	var names []string
	for _, c := range root.Commands() {
		names = append(names, c.Name())
	}
	assert.Subset(t, names, []string{"serve", "migrate", "analyze"})

	migrate, _, err := root.Find([]string{"migrate", "up"})
	require.NoError(t, err)
	assert.Equal(t, "up", migrate.Name())
}

func TestAnalyzeRequiresFlags(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: {host: db, name: mediscan}
minio: {endpoint: "minio:9000"}
ai: {apiKey: sk-test}
`), 0o600))

	root := newRootCmd()
	root.SetArgs([]string{"--config", path, "analyze"})
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), `required flag(s) "file", "user" not set`)
}

func TestToPolicy(t *testing.T) {
	p := toPolicy(config.RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, Backoff: "fixed"}, false)
	assert.Equal(t, 4, p.MaxAttempts)
	assert.Equal(t, retry.Fixed, p.Backoff)
	assert.Nil(t, p.Retryable)

	p = toPolicy(config.RetryPolicy{MaxAttempts: 3, Backoff: "linear"}, true)
	require.NotNil(t, p.Retryable)
	assert.False(t, p.Retryable(ai.ErrQuotaExceeded))
	assert.True(t, p.Retryable(ai.ErrRateLimited))
	assert.False(t, appanalysis.Retryable(ai.ErrMalformedOutput))
}

func TestClaimTTLCoversRetries(t *testing.T) {
	policies := appanalysis.Policies{
		Storage:  retry.Policy{MaxAttempts: 3, BaseDelay: time.Second},
		Database: retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond},
		AI:       retry.Policy{MaxAttempts: 3, BaseDelay: 2 * time.Second},
	}

	got := claimTTL(time.Minute, policies)

	// storage 3x10s + 1s + 2s, ai 2 x (3x60s + 2s + 4s), db 3x10s + 0.5s + 1s, margin 30s
	assert.Equal(t, 33*time.Second+372*time.Second+31500*time.Millisecond+30*time.Second, got)
	assert.Greater(t, got, 2*time.Minute*3, "longer than the AI timeouts alone")
}
