package shared

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Catalog   CatalogConfig   `toml:"catalog"`
	Streaming StreamingConfig `toml:"streaming"`
	Downloads DownloadsConfig `toml:"downloads"`
	Matching  MatchingConfig  `toml:"matching"`
	Database  DatabaseConfig  `toml:"database"`
	Server    ServerConfig    `toml:"server"`
}

// CatalogConfig contains connection settings for the local media server.
type CatalogConfig struct {
	BaseURL  string `toml:"base_url"`
	Username string `toml:"username"`
	Password string `toml:"password"`
	// SearchTimeoutSecs bounds each catalog search call. Defaults to 5.
	SearchTimeoutSecs int `toml:"search_timeout_secs"`
	// CacheTTLSecs controls how long search results are cached.
	CacheTTLSecs int `toml:"cache_ttl_secs"`
}

// StreamingConfig contains OAuth2 credentials for the remote platform adapter.
type StreamingConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURI  string `toml:"redirect_uri"`
}

// DownloadsConfig configures the two acquisition back-ends and routing policy.
type DownloadsConfig struct {
	CatalogManagerURL    string `toml:"catalog_manager_url"`
	CatalogManagerAPIKey string `toml:"catalog_manager_api_key"`
	FetcherURL           string `toml:"fetcher_url"`
	FetcherFormat        string `toml:"fetcher_format"`
	FetcherQuality       string `toml:"fetcher_quality"`
	// PreferCatalogForAlbums routes full-album requests to the catalog
	// manager instead of the single-track fetcher.
	PreferCatalogForAlbums bool   `toml:"prefer_catalog_for_albums"`
	DefaultService         string `toml:"default_service"`
}

// MatchingConfig tunes the song matcher.
type MatchingConfig struct {
	// Concurrency caps in-flight catalog searches per import job.
	Concurrency int `toml:"concurrency"`
	// MaxCandidates bounds the candidate list kept per song.
	MaxCandidates int `toml:"max_candidates"`
	// AutoAcceptGap is the minimum score lead the top candidate needs over
	// the runner-up before it is accepted without review.
	AutoAcceptGap int `toml:"auto_accept_gap"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host string `toml:"host"`
	Port int    `toml:"port"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMissingConfig, err)
	}

	var config Config
	if err := toml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return &config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
