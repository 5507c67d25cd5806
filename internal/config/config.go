// Package config loads the settings shared by the paladin-plugins command and its plugins.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

const (
	// CacheEnv overrides the cache directory.
	CacheEnv = "PALADIN_PLUGINS_CACHE"
	// LogLevelEnv overrides the log level.
	LogLevelEnv = "PALADIN_PLUGINS_LOG_LEVEL"

	configFileName = "config.yaml"
)

var (
	ErrInvalidExpiry  = errors.New("expire_days must not be negative")
	ErrInvalidWorkers = errors.New("workers must be positive")
	ErrInvalidFormat  = errors.New("log format must be json or console")
	ErrInvalidPeriod  = errors.New("duration must be positive")
)

// Config holds all paladin-plugins configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store"`
	Output  OutputConfig  `yaml:"output"`
	Logging LoggingConfig `yaml:"logging"`
	Aligner AlignerConfig `yaml:"aligner"`
	Remote  RemoteConfig  `yaml:"remote"`
}

// StoreConfig locates the files plugins download, cache and produce.
type StoreConfig struct {
	CacheDir   string `yaml:"cache_dir"`
	OutputDir  string `yaml:"output_dir"`
	TempPrefix string `yaml:"temp_prefix"`
	// ExpireDays is the age after which cached downloads and tables are refreshed.
	ExpireDays int `yaml:"expire_days"`
}

// OutputConfig chooses which streams go straight to the console instead of being buffered
// until the next flush or write.
type OutputConfig struct {
	ConsoleStdout bool `yaml:"console_stdout"`
	ConsoleStderr bool `yaml:"console_stderr"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or console
}

// AlignerConfig configures the PALADIN aligner run by the automate and hpc plugins.
type AlignerConfig struct {
	Binary  string `yaml:"binary"`
	Workers int    `yaml:"workers"`
}

// RemoteConfig lists the remote resources plugins fetch.
type RemoteConfig struct {
	TaxonomyLineageURL string `yaml:"taxonomy_lineage_url"`
	IDMappingURL       string `yaml:"id_mapping_url"`
	SwissProtURL       string `yaml:"swissprot_url"`
	TremblURL          string `yaml:"trembl_url"`
	UniProtRESTURL     string `yaml:"uniprot_rest_url"`
	KEGGRESTURL        string `yaml:"kegg_rest_url"`
	PollInterval       string `yaml:"poll_interval"`
	Timeout            string `yaml:"timeout"`
}

// DefaultConfig returns the configuration used when no file overrides it.
func DefaultConfig() *Config {
	return &Config{
		Store: StoreConfig{
			CacheDir:   "~/.paladin-plugins",
			OutputDir:  ".",
			TempPrefix: "pp-",
			ExpireDays: 30,
		},
		Output: OutputConfig{
			ConsoleStdout: false,
			ConsoleStderr: true,
		},
		Logging: LoggingConfig{
			Level:  "warn",
			Format: "console",
		},
		Aligner: AlignerConfig{
			Binary:  "paladin",
			Workers: runtime.NumCPU(),
		},
		Remote: RemoteConfig{
			TaxonomyLineageURL: "https://rest.uniprot.org/taxonomy/stream?fields=id%2Cmnemonic%2Clineage&format=tsv&query=%28%2A%29",
			IDMappingURL:       "https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/idmapping/idmapping.dat.gz",
			SwissProtURL:       "https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/complete/uniprot_sprot.fasta.gz",
			TremblURL:          "https://ftp.uniprot.org/pub/databases/uniprot/current_release/knowledgebase/complete/uniprot_trembl.fasta.gz",
			UniProtRESTURL:     "https://rest.uniprot.org",
			KEGGRESTURL:        "https://rest.kegg.jp",
			PollInterval:       "3s",
			Timeout:            "10m",
		},
	}
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	cache := DefaultConfig().Store.CacheDir
	if env := os.Getenv(CacheEnv); env != "" {
		cache = env
	}

	return filepath.Join(ExpandHome(cache), configFileName)
}

// Load reads the YAML file at path on top of the defaults. A missing file yields the defaults.
// Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "unable to read config %s", path)
	}
	if err == nil {
		err = yaml.Unmarshal(data, cfg)
		if err != nil {
			return nil, errors.Wrapf(err, "unable to parse config %s", path)
		}
	}

	cfg.applyEnvOverrides()

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if cache := os.Getenv(CacheEnv); cache != "" {
		c.Store.CacheDir = cache
	}
	if level := os.Getenv(LogLevelEnv); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks the values a file may have broken.
func (c *Config) Validate() error {
	if c.Store.ExpireDays < 0 {
		return errors.Wrapf(ErrInvalidExpiry, "got %d", c.Store.ExpireDays)
	}
	if c.Aligner.Workers <= 0 {
		return errors.Wrapf(ErrInvalidWorkers, "got %d", c.Aligner.Workers)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return errors.Wrapf(ErrInvalidFormat, "got %q", c.Logging.Format)
	}
	_, err := c.Remote.PollDuration()
	if err != nil {
		return err
	}
	_, err = c.Remote.TimeoutDuration()

	return err
}

// PollDuration parses the positive interval between two status requests of a remote job.
func (r RemoteConfig) PollDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.PollInterval)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid poll_interval %q", r.PollInterval)
	}
	if d <= 0 {
		return 0, errors.Wrapf(ErrInvalidPeriod, "poll_interval %q", r.PollInterval)
	}

	return d, nil
}

// TimeoutDuration parses the positive timeout of a single remote request.
func (r RemoteConfig) TimeoutDuration() (time.Duration, error) {
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, errors.Wrapf(err, "invalid timeout %q", r.Timeout)
	}
	if d <= 0 {
		return 0, errors.Wrapf(ErrInvalidPeriod, "timeout %q", r.Timeout)
	}

	return d, nil
}

// Save writes the configuration to path, creating its directory.
func (c *Config) Save(path string) error {
	err := os.MkdirAll(filepath.Dir(path), 0o755)
	if err != nil {
		return errors.Wrapf(err, "unable to create config directory for %s", path)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return errors.Wrap(err, "unable to marshal config")
	}

	return errors.Wrapf(os.WriteFile(path, data, 0o600), "unable to write config %s", path)
}

// ExpandHome replaces a leading ~ with the home directory of the user.
func ExpandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}
