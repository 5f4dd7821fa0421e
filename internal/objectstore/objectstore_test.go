package objectstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClientOptionsFromEnvPrefersExplicitPath(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	opts := ClientOptionsFromEnv("/explicit/path.json")
	assert.Len(t, opts, 1)
}

func TestClientOptionsFromEnvUsesInlineJSON(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", `{"type":"service_account"}`)
	opts := ClientOptionsFromEnv("")
	assert.Len(t, opts, 1)
}

func TestClientOptionsFromEnvFallsBackToFileVar(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "/path/to/sa.json")
	opts := ClientOptionsFromEnv("")
	assert.Len(t, opts, 1)
}

func TestClientOptionsFromEnvEmptyWhenNothingSet(t *testing.T) {
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS_JSON", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	opts := ClientOptionsFromEnv("")
	assert.Len(t, opts, 0)
}

func TestBucketModeConstants(t *testing.T) {
	assert.Equal(t, BucketMode("create_new"), ModeCreateNew)
	assert.Equal(t, BucketMode("use_existing"), ModeUseExisting)
}
