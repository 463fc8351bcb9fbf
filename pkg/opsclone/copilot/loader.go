// Package copilot – loader.go handles loading configuration from YAML files
// with credentials supplied through environment variables and .env files.
package copilot

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables consulted for secrets.
const (
	EnvAPIKey       = "OPSCLONE_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvWebhookURL   = "MAKE_WEBHOOK_URL"
	EnvAdminToken   = "OPSCLONE_ADMIN_TOKEN"
	EnvDatabasePass = "OPSCLONE_DB_PASSWORD"
)

// envVarPattern matches environment variable patterns in config values:
//   - ${VAR_NAME}          - simple variable
//   - ${VAR_NAME:-default} - default value if not set
//   - ${VAR_NAME:?error}   - error message if not set
//   - $VAR_NAME            - bare variable (no default/error support)
//
// Capture groups:
//   - Group 1: Variable name (for ${} syntax)
//   - Group 2: Modifier type ("-" for default, "?" for error)
//   - Group 3: Default value or error message
//   - Group 4: Variable name (for bare $VAR syntax)
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}|\$([A-Z_][A-Z0-9_]*)`)

// LoadConfigFromFile reads and parses a YAML configuration file.
// Loads .env files first and expands environment variables.
// Returns an error if any ${VAR:?error} pattern has its variable unset.
func LoadConfigFromFile(path string) (*Config, error) {
	loadEnvFiles()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := ParseConfig([]byte(expanded))
	if err != nil {
		return nil, err
	}

	ResolveSecrets(cfg)
	resolveRelativePaths(cfg, path)
	checkFilePermissions(path)

	return cfg, nil
}

// LoadDefaultConfig returns the defaults with secrets resolved from the
// environment, for running without a config file.
func LoadDefaultConfig() *Config {
	loadEnvFiles()
	cfg := DefaultConfig()
	ResolveSecrets(cfg)
	return cfg
}

// ParseConfig parses YAML bytes into a Config.
// Starts with defaults and overlays values from the YAML.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	return cfg, nil
}

// SaveConfigToFile writes a Config as YAML to the specified path.
// Secrets that came from the environment are written back as references.
// The existing file is kept as .bak.
func SaveConfigToFile(cfg *Config, path string) error {
	sanitized := *cfg
	sanitized.API.APIKey = sanitizeSecret(cfg.API.APIKey, EnvAPIKey, EnvOpenAIKey)
	sanitized.Webhook.URL = sanitizeSecret(cfg.Webhook.URL, EnvWebhookURL)
	sanitized.Gateway.AdminToken = sanitizeSecret(cfg.Gateway.AdminToken, EnvAdminToken)
	sanitized.Database.PostgreSQL.Password = sanitizeSecret(cfg.Database.PostgreSQL.Password, EnvDatabasePass)

	data, err := yaml.Marshal(&sanitized)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	var check map[string]any
	if err := yaml.Unmarshal(data, &check); err != nil {
		return fmt.Errorf("config validation failed (refusing to write corrupt data): %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"config.yaml",
		"config.yml",
		"opsclone.yaml",
		"opsclone.yml",
		"configs/config.yaml",
		"configs/opsclone.yaml",
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// AuditSecrets logs a warning for secrets that look hardcoded in the
// config file.
func AuditSecrets(cfg *Config, logger *slog.Logger) {
	if cfg.API.APIKey != "" && !IsEnvReference(cfg.API.APIKey) && looksLikeRealKey(cfg.API.APIKey) &&
		os.Getenv(EnvAPIKey) != cfg.API.APIKey && os.Getenv(EnvOpenAIKey) != cfg.API.APIKey {
		logger.Warn("API key appears to be hardcoded in config. "+
			"Use environment variable "+EnvAPIKey+" instead.",
			"hint", "Set 'api_key: ${"+EnvAPIKey+"}' in config.yaml")
	}
}

// ResolveSecrets fills in secrets from environment variables when the
// config value is empty or an unresolved reference.
func ResolveSecrets(cfg *Config) {
	if unset(cfg.API.APIKey) {
		if key := os.Getenv(EnvAPIKey); key != "" {
			cfg.API.APIKey = key
		} else if key := os.Getenv(EnvOpenAIKey); key != "" {
			cfg.API.APIKey = key
		}
	}
	if unset(cfg.Webhook.URL) {
		cfg.Webhook.URL = os.Getenv(EnvWebhookURL)
	}
	if unset(cfg.Gateway.AdminToken) {
		cfg.Gateway.AdminToken = os.Getenv(EnvAdminToken)
	}
	if unset(cfg.Database.PostgreSQL.Password) {
		cfg.Database.PostgreSQL.Password = os.Getenv(EnvDatabasePass)
	}
}

func unset(v string) bool {
	return v == "" || IsEnvReference(v)
}

// ---------- Internal ----------

// loadEnvFiles loads .env files from standard locations.
// godotenv does NOT overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default}, ${VAR:?error}, and $VAR
// references in a string with their environment variable values.
//
// Unset variables without a modifier keep their placeholder. An unset
// ${VAR:?error} is replaced by an ERROR: marker that
// expandEnvVarsWithValidation turns into an error.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value, bareVar := sub[1], sub[2], sub[3], sub[4]

		if bareVar != "" {
			if val, ok := os.LookupEnv(bareVar); ok {
				return val
			}
			return match
		}

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + value
		case "-":
			return value
		default:
			return match
		}
	})
}

// expandEnvVarsWithValidation is like expandEnvVars but returns an error
// if any ${VAR:?error} pattern has its variable unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx == -1 {
		return result, nil
	}

	// Format: ERROR:VAR_NAME:error message (to end of line)
	rest := result[idx+len("ERROR:"):]
	if nl := strings.IndexByte(rest, '\n'); nl != -1 {
		rest = rest[:nl]
	}
	colon := strings.Index(rest, ":")
	if colon == -1 {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	return "", fmt.Errorf("config error: %s - %s", rest[:colon], strings.TrimSpace(rest[colon+1:]))
}

// resolveRelativePaths converts relative paths to absolute paths based on
// the config file's directory.
func resolveRelativePaths(cfg *Config, configPath string) {
	configDir := filepath.Dir(configPath)

	if cfg.Persona.File != "" {
		cfg.Persona.File = resolvePathFromConfig(cfg.Persona.File, configDir)
	}
	if cfg.Database.SQLite.Path != "" {
		cfg.Database.SQLite.Path = resolvePathFromConfig(cfg.Database.SQLite.Path, configDir)
	}
}

// resolvePathFromConfig converts a path to absolute, resolving relative paths
// against the config file's directory. Expands ~ to home directory.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		path = filepath.Join(home, path[2:])
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// sanitizeSecret replaces a secret with a reference to the first env var
// that holds the same value.
func sanitizeSecret(value string, envVars ...string) string {
	if value == "" || IsEnvReference(value) {
		return value
	}
	for _, envVar := range envVars {
		if os.Getenv(envVar) == value {
			return "${" + envVar + "}"
		}
	}
	return value
}

// IsEnvReference checks if a string is an environment variable reference.
func IsEnvReference(s string) bool {
	return strings.HasPrefix(s, "${") || (strings.HasPrefix(s, "$") && envVarPattern.MatchString(s))
}

// looksLikeRealKey heuristically checks if a string looks like a real API key.
func looksLikeRealKey(s string) bool {
	if IsEnvReference(s) {
		return false
	}
	return strings.HasPrefix(s, "sk-") || len(s) > 20
}

// checkFilePermissions warns if config file is group or world readable.
func checkFilePermissions(path string) {
	info, err := os.Stat(path)
	if err != nil {
		return
	}
	mode := info.Mode().Perm()
	if mode&0o044 != 0 {
		slog.Warn("config file has open permissions, consider restricting",
			"path", path,
			"current", fmt.Sprintf("%04o", mode),
			"recommended", "0600",
			"fix", fmt.Sprintf("chmod 600 %s", path),
		)
	}
}
