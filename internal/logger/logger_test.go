package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentAndProduction(t *testing.T) {
	dev, err := New("development")
	require.NoError(t, err)
	require.NotNil(t, dev)

	prod, err := New("production")
	require.NoError(t, err)
	require.NotNil(t, prod)
}

func TestWithReturnsScopedLogger(t *testing.T) {
	l := Nop()
	scoped := l.With("component", "test")
	require.NotNil(t, scoped)
	assert.NotPanics(t, func() { scoped.Info("hello", "k", "v") })
}

func TestIsRedactKeyMatchesCredentialShapedFields(t *testing.T) {
	for _, k := range []string{"credential_path", "service_account_json", "api_key", "auth_token", "client_secret", "signed_url"} {
		assert.True(t, isRedactKey(k), "expected %q to be redacted", k)
	}
	assert.False(t, isRedactKey("bucket"))
	assert.False(t, isRedactKey("stage"))
}

func TestSanitizeValueRedactsSignedURLsAndCredentials(t *testing.T) {
	assert.Equal(t, "[REDACTED]", sanitizeValue("credential_path", "/secrets/sa.json"))
	assert.Equal(t, "my-bucket", sanitizeValue("bucket", "my-bucket"))
	assert.Equal(t, "[REDACTED]", sanitizeValue("url", "https://storage.googleapis.com/x?X-Goog-Signature=abc"))
}

func TestNilLoggerSyncDoesNotPanic(t *testing.T) {
	var l *Logger
	assert.NotPanics(t, func() { l.Sync() })
}
