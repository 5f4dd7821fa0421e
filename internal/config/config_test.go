package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeYAML(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func baseYAML(dir string) string {
	return `
directories:
  temp_dir: ` + dir + `/temp
  output_dir: ` + dir + `/output
  jobs_dir: ` + dir + `/jobs
processing:
  chunk_duration_seconds: 60
  worker_pool_size: 6
  success_rate_threshold: 0.3
  max_video_bytes: 1000000
  min_video_bytes: 10
  max_video_duration_seconds: 43200
  allowed_extensions: [".mp4"]
gcp:
  project_id: test-project
  region: us-central1
  auth_method: default_credentials
  bucket_mode: create_new
  bucket_prefix: subtitle-pipeline
model:
  model_name: gemini-1.5-pro
  request_timeout: 10m
default_languages: ["eng"]
`
}

func TestLoadBaseOnly(t *testing.T) {
	dir := t.TempDir()
	basePath := writeYAML(t, dir, "base.yaml", baseYAML(dir))

	cfg, err := Load(basePath, "")
	require.NoError(t, err)
	assert.Equal(t, "test-project", cfg.GCP.ProjectID)
	assert.Equal(t, 6, cfg.Processing.WorkerPoolSize)
	assert.True(t, cfg.ExtensionAllowed(".mp4"))
	assert.True(t, cfg.ExtensionAllowed(".MP4"))
	assert.False(t, cfg.ExtensionAllowed(".mkv"))
}

func TestLoadLocalOverrideWins(t *testing.T) {
	dir := t.TempDir()
	basePath := writeYAML(t, dir, "base.yaml", baseYAML(dir))
	localPath := writeYAML(t, dir, "local.yaml", `
processing:
  worker_pool_size: 2
`)

	cfg, err := Load(basePath, localPath)
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Processing.WorkerPoolSize)
	assert.Equal(t, "test-project", cfg.GCP.ProjectID, "unrelated base fields survive the merge")
}

func TestLoadMissingLocalIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	basePath := writeYAML(t, dir, "base.yaml", baseYAML(dir))

	_, err := Load(basePath, filepath.Join(dir, "does-not-exist.yaml"))
	require.NoError(t, err)
}

func TestLoadRejectsUnsupportedRegion(t *testing.T) {
	dir := t.TempDir()
	basePath := writeYAML(t, dir, "base.yaml", `
directories:
  temp_dir: ` + dir + `/temp
  output_dir: ` + dir + `/output
  jobs_dir: ` + dir + `/jobs
processing:
  chunk_duration_seconds: 60
  worker_pool_size: 6
  success_rate_threshold: 0.3
  max_video_bytes: 1000000
  min_video_bytes: 10
  max_video_duration_seconds: 43200
  allowed_extensions: [".mp4"]
gcp:
  project_id: test-project
  region: mars-central1
  auth_method: default_credentials
  bucket_mode: create_new
model:
  model_name: gemini-1.5-pro
  request_timeout: 10m
default_languages: ["eng"]
`)

	_, err := Load(basePath, "")
	require.Error(t, err)
}

func TestEnvOverridesTakePrecedence(t *testing.T) {
	dir := t.TempDir()
	basePath := writeYAML(t, dir, "base.yaml", baseYAML(dir))

	t.Setenv("SUBGEN_PROJECT_ID", "env-project")
	t.Setenv("SUBGEN_BUCKET_NAME", "env-bucket")

	cfg, err := Load(basePath, "")
	require.NoError(t, err)
	assert.Equal(t, "env-project", cfg.GCP.ProjectID)
	assert.Equal(t, "env-bucket", cfg.GCP.ExistingBucket)
	assert.Equal(t, "use_existing", cfg.GCP.BucketMode)
}

func TestValidateLanguageCode(t *testing.T) {
	assert.True(t, ValidateLanguageCode("eng"))
	assert.True(t, ValidateLanguageCode("HIN"))
	assert.False(t, ValidateLanguageCode("fra"))
}
