package configuration

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/form3tech-oss/pact-engine/internal/app/matching"
	"github.com/form3tech-oss/pact-engine/internal/app/mockserver"
	"github.com/form3tech-oss/pact-engine/internal/app/verifier"
	"github.com/pkg/errors"
	"github.com/sethvargo/go-envconfig"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	defaultPactDir   = "pacts"
	defaultMockHost  = "127.0.0.1"
	defaultAdminPort = 8080
	defaultLogLevel  = "info"
)

// Config is read from an optional YAML file first, environment variables override
// the file and anything left empty gets a default.
type Config struct {
	PactDir          string        `yaml:"pactDir" env:"PACT_DIR,overwrite"`
	Pacts            []string      `yaml:"pacts" env:"PACTS,overwrite,delimiter=;"` // Contract file globs, e.g. pacts/**/*.json
	MockHost         string        `yaml:"mockHost" env:"MOCK_HOST,overwrite"`
	MockPort         int           `yaml:"mockPort" env:"MOCK_PORT,overwrite"`
	AdminPort        int           `yaml:"adminPort" env:"ADMIN_PORT,overwrite"`
	PathMatching     string        `yaml:"pathMatching" env:"PATH_MATCHING,overwrite"` // strict or typed-id
	ProviderBaseURL  string        `yaml:"providerBaseUrl" env:"PROVIDER_BASE_URL,overwrite"`
	StateChangeURL   string        `yaml:"stateChangeUrl" env:"STATE_CHANGE_URL,overwrite"`
	VerifyWorkers    int           `yaml:"verifyWorkers" env:"VERIFY_WORKERS,overwrite"`
	VerifyAttempts   int           `yaml:"verifyAttempts" env:"VERIFY_ATTEMPTS,overwrite"`
	VerifyRetryDelay time.Duration `yaml:"verifyRetryDelay" env:"VERIFY_RETRY_DELAY,overwrite"`
	WaitDelay        time.Duration `yaml:"waitDelay" env:"WAIT_DELAY,overwrite"`       // Delay between polls of the wait endpoint
	WaitDuration     time.Duration `yaml:"waitDuration" env:"WAIT_DURATION,overwrite"` // Timeout of the wait endpoint
	LogLevel         string        `yaml:"logLevel" env:"LOG_LEVEL,overwrite"`
	LogFormat        string        `yaml:"logFormat" env:"LOG_FORMAT,overwrite"` // text or json
}

// Load reads the file at path, when one is given, and then the environment.
func Load(ctx context.Context, path string) (Config, error) {
	return load(ctx, path, envconfig.OsLookuper())
}

func load(ctx context.Context, path string, lookuper envconfig.Lookuper) (Config, error) {
	var config Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return config, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return config, errors.Wrapf(err, "parse config file %s", path)
		}
	}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return config, errors.Wrap(err, "process env config")
	}

	config.applyDefaults()
	return config, config.Validate()
}

func (c *Config) applyDefaults() {
	if c.PactDir == "" {
		c.PactDir = defaultPactDir
	}
	if c.MockHost == "" {
		c.MockHost = defaultMockHost
	}
	if c.AdminPort == 0 {
		c.AdminPort = defaultAdminPort
	}
	if c.PathMatching == "" {
		c.PathMatching = string(matching.PathStrict)
	}
	if c.LogLevel == "" {
		c.LogLevel = defaultLogLevel
	}
}

func (c Config) Validate() error {
	if _, err := ParsePathMode(c.PathMatching); err != nil {
		return err
	}
	if _, err := log.ParseLevel(c.LogLevel); err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	if c.LogFormat != "" && c.LogFormat != "text" && c.LogFormat != "json" {
		return errors.Errorf("invalid log format %q, expected text or json", c.LogFormat)
	}
	return nil
}

func ParsePathMode(mode string) (matching.PathMode, error) {
	switch matching.PathMode(mode) {
	case "", matching.PathStrict:
		return matching.PathStrict, nil
	case matching.PathTypedID:
		return matching.PathTypedID, nil
	}
	return "", errors.Errorf("invalid path matching %q, expected %s or %s", mode, matching.PathStrict, matching.PathTypedID)
}

// ContractPatterns returns the contract file globs to use: Pacts when set, otherwise
// every JSON file below PactDir.
func (c Config) ContractPatterns() []string {
	if len(c.Pacts) > 0 {
		return c.Pacts
	}
	return []string{filepath.ToSlash(filepath.Join(c.PactDir, "**", "*.json"))}
}

// MockOptions are the options every mock server started from this configuration
// gets.
func (c Config) MockOptions() []mockserver.Option {
	mode, _ := ParsePathMode(c.PathMatching)
	return []mockserver.Option{
		mockserver.WithPathMatching(mode),
		mockserver.WithWait(c.WaitDelay, c.WaitDuration),
	}
}

func (c Config) VerifierOptions() []verifier.Option {
	options := []verifier.Option{
		verifier.WithWorkers(c.VerifyWorkers),
		verifier.WithAttempts(c.VerifyAttempts),
		verifier.WithRetryDelay(c.VerifyRetryDelay),
	}
	if c.StateChangeURL != "" {
		options = append(options, verifier.WithStateHandler(verifier.StateChangeURL(c.StateChangeURL)))
	}
	return options
}

// ConfigureLogging sets up the standard logger.
func (c Config) ConfigureLogging() error {
	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	if c.LogFormat == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	}
	return nil
}
