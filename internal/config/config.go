// Package config loads and validates the pipeline's static configuration:
// a base file with an optional local override, deep-merged with the
// override winning, exposed as a typed Config instead of untyped dot-path
// lookups outside this package.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/hoichoi-opensource/video-subtitle-generator/internal/apierr"
)

// AuthMethod is the closed set of supported GCP auth methods.
type AuthMethod string

const (
	AuthServiceAccount     AuthMethod = "service_account"
	AuthDefaultCredentials AuthMethod = "default_credentials"
)

// allowedRegions is the GCP region allow-list. Kept small and
// explicit: this pipeline only ever runs in regions the operator has
// provisioned storage and model quota for.
var allowedRegions = map[string]bool{
	"us-central1":    true,
	"us-east1":       true,
	"us-east4":       true,
	"us-west1":       true,
	"europe-west1":   true,
	"europe-west4":   true,
	"asia-south1":    true,
	"asia-southeast1": true,
}

// allowedLanguages is the closed set of three-letter ISO 639-2/T codes this
// pipeline knows how to prompt, validate, and render for.
var allowedLanguages = map[string]bool{
	"eng": true,
	"ben": true,
	"hin": true,
}

// AllowedLanguages returns the closed set of supported language codes.
func AllowedLanguages() []string {
	out := make([]string, 0, len(allowedLanguages))
	for k := range allowedLanguages {
		out = append(out, k)
	}
	return out
}

// AllowedRegions returns the GCP region allow-list.
func AllowedRegions() []string {
	out := make([]string, 0, len(allowedRegions))
	for k := range allowedRegions {
		out = append(out, k)
	}
	return out
}

type DirectoriesConfig struct {
	TempDir   string `yaml:"temp_dir" validate:"required"`
	OutputDir string `yaml:"output_dir" validate:"required"`
	JobsDir   string `yaml:"jobs_dir" validate:"required"`
}

type ProcessingConfig struct {
	ChunkDurationSeconds float64 `yaml:"chunk_duration_seconds" validate:"gt=0"`
	WorkerPoolSize       int     `yaml:"worker_pool_size" validate:"gte=1,lte=64"`
	SuccessRateThreshold float64 `yaml:"success_rate_threshold" validate:"gte=0,lte=1"`
	MaxVideoBytes        int64   `yaml:"max_video_bytes" validate:"gt=0"`
	MinVideoBytes        int64   `yaml:"min_video_bytes" validate:"gt=0"`
	MaxVideoDurationSecs float64 `yaml:"max_video_duration_seconds" validate:"gt=0"`
	AllowedExtensions    []string `yaml:"allowed_extensions" validate:"min=1,dive,required"`
}

type GCPConfig struct {
	ProjectID        string     `yaml:"project_id" validate:"required"`
	Region           string     `yaml:"region" validate:"required"`
	AuthMethod       AuthMethod `yaml:"auth_method" validate:"required"`
	CredentialPath   string     `yaml:"credential_path"`
	BucketMode       string     `yaml:"bucket_mode" validate:"oneof=create_new use_existing"`
	BucketPrefix     string     `yaml:"bucket_prefix"`
	ExistingBucket   string     `yaml:"existing_bucket"`
}

type ModelConfig struct {
	ModelName      string `yaml:"model_name" validate:"required"`
	RequestTimeout string `yaml:"request_timeout" validate:"required"`
}

type Config struct {
	Directories DirectoriesConfig `yaml:"directories" validate:"required"`
	Processing  ProcessingConfig  `yaml:"processing" validate:"required"`
	GCP         GCPConfig         `yaml:"gcp" validate:"required"`
	Model       ModelConfig       `yaml:"model" validate:"required"`
	Languages   []string          `yaml:"default_languages" validate:"min=1,dive,required"`
}

// Default returns the baseline configuration used when no config file is
// supplied; CLI flags and env vars layer on top of this.
func Default() Config {
	return Config{
		Directories: DirectoriesConfig{
			TempDir:   "temp",
			OutputDir: "output",
			JobsDir:   "jobs",
		},
		Processing: ProcessingConfig{
			ChunkDurationSeconds: 60,
			WorkerPoolSize:       6,
			SuccessRateThreshold: 0.3,
			MaxVideoBytes:        50 * 1024 * 1024 * 1024,
			MinVideoBytes:        100 * 1024,
			MaxVideoDurationSecs: 12 * 3600,
			AllowedExtensions:    []string{".mp4", ".mov", ".mkv", ".webm", ".avi"},
		},
		GCP: GCPConfig{
			Region:     "us-central1",
			AuthMethod: AuthDefaultCredentials,
			BucketMode: "create_new",
			BucketPrefix: "subtitle-pipeline",
		},
		Model: ModelConfig{
			ModelName:      "gemini-1.5-pro",
			RequestTimeout: "10m",
		},
		Languages: []string{"eng"},
	}
}

// Load reads basePath, deep-merges localPath on top if it exists, decodes
// into Config, applies env var overrides, and validates. localPath may be
// empty, in which case it is skipped without error.
func Load(basePath, localPath string) (Config, error) {
	merged, err := loadMergedYAML(basePath, localPath)
	if err != nil {
		return Config{}, err
	}

	cfg := Default()
	raw, err := yaml.Marshal(merged)
	if err != nil {
		return Config{}, apierr.Configuration("config", nil, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, apierr.Configuration("config", nil, err)
	}

	applyEnvOverrides(&cfg)

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadMergedYAML(basePath, localPath string) (map[string]any, error) {
	base := map[string]any{}
	if basePath != "" {
		b, err := os.ReadFile(basePath)
		if err != nil {
			if os.IsNotExist(err) {
				base = map[string]any{}
			} else {
				return nil, apierr.Configuration(basePath, nil, err)
			}
		} else if err := yaml.Unmarshal(b, &base); err != nil {
			return nil, apierr.Configuration(basePath, nil, err)
		}
	}

	if localPath == "" {
		return base, nil
	}
	l, err := os.ReadFile(localPath)
	if err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, apierr.Configuration(localPath, nil, err)
	}
	var local map[string]any
	if err := yaml.Unmarshal(l, &local); err != nil {
		return nil, apierr.Configuration(localPath, nil, err)
	}
	return deepMerge(base, local), nil
}

// deepMerge merges override onto base, override wins, recursing into nested
// maps.
func deepMerge(base, override map[string]any) map[string]any {
	result := make(map[string]any, len(base))
	for k, v := range base {
		result[k] = v
	}
	for k, v := range override {
		if bv, ok := result[k]; ok {
			if bm, ok := bv.(map[string]any); ok {
				if ov, ok := v.(map[string]any); ok {
					result[k] = deepMerge(bm, ov)
					continue
				}
			}
		}
		result[k] = v
	}
	return result
}

// applyEnvOverrides lets a handful of operational settings be supplied via
// environment variables, taking precedence over the config file.
func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("SUBGEN_PROJECT_ID")); v != "" {
		cfg.GCP.ProjectID = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBGEN_CREDENTIAL_PATH")); v != "" {
		cfg.GCP.CredentialPath = v
	}
	if v := strings.TrimSpace(os.Getenv("SUBGEN_BUCKET_NAME")); v != "" {
		cfg.GCP.ExistingBucket = v
		cfg.GCP.BucketMode = "use_existing"
	}
	if v := strings.TrimSpace(os.Getenv("SUBGEN_REGION")); v != "" {
		cfg.GCP.Region = v
	}
}

var structValidator = validator.New()

// Validate enforces the closed-set and filesystem checks lists on
// top of the struct-tag validation (go-playground/validator).
func Validate(cfg Config) error {
	if err := structValidator.Struct(cfg); err != nil {
		return apierr.Configuration("config", nil, err)
	}

	for _, lang := range cfg.Languages {
		if !allowedLanguages[lang] {
			return apierr.Configuration("default_languages", AllowedLanguages(), fmt.Errorf("unsupported language %q", lang))
		}
	}

	if !allowedRegions[cfg.GCP.Region] {
		return apierr.Configuration("gcp.region", AllowedRegions(), fmt.Errorf("unsupported region %q", cfg.GCP.Region))
	}

	switch cfg.GCP.AuthMethod {
	case AuthServiceAccount, AuthDefaultCredentials:
	default:
		return apierr.Configuration("gcp.auth_method", []string{string(AuthServiceAccount), string(AuthDefaultCredentials)}, fmt.Errorf("unsupported auth method %q", cfg.GCP.AuthMethod))
	}

	if cfg.GCP.AuthMethod == AuthServiceAccount {
		if cfg.GCP.CredentialPath == "" {
			return apierr.Configuration("gcp.credential_path", nil, fmt.Errorf("required when auth_method=%s", AuthServiceAccount))
		}
		if _, err := os.Stat(cfg.GCP.CredentialPath); err != nil {
			return apierr.Configuration("gcp.credential_path", nil, fmt.Errorf("credential file not accessible: %w", err))
		}
	}

	if cfg.GCP.BucketMode == "use_existing" && strings.TrimSpace(cfg.GCP.ExistingBucket) == "" {
		return apierr.Configuration("gcp.existing_bucket", nil, fmt.Errorf("required when bucket_mode=use_existing"))
	}

	for _, dir := range []string{cfg.Directories.TempDir, cfg.Directories.OutputDir, cfg.Directories.JobsDir} {
		if err := ensureCreatable(dir); err != nil {
			return apierr.Configuration("directories", nil, err)
		}
	}

	return nil
}

// ValidateLanguageCode reports whether a single language code is supported,
// used by the CLI to reject `--language` flags early.
func ValidateLanguageCode(code string) bool {
	return allowedLanguages[strings.ToLower(code)]
}

func ensureCreatable(dir string) error {
	if dir == "" {
		return fmt.Errorf("empty directory path")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("directory %q not creatable: %w", dir, err)
	}
	return nil
}

// ExtensionAllowed reports whether a file extension (including the leading
// dot, case-insensitive) is in the allow-list.
func (c Config) ExtensionAllowed(ext string) bool {
	ext = strings.ToLower(ext)
	for _, a := range c.Processing.AllowedExtensions {
		if strings.ToLower(a) == ext {
			return true
		}
	}
	return false
}

// JoinConfigPath resolves a config file argument relative to cwd, returning
// "" unchanged (meaning "no file") so Load can skip it cleanly.
func JoinConfigPath(p string) string {
	if p == "" {
		return ""
	}
	return filepath.Clean(p)
}
