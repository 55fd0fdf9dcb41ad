package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/urfave/cli/v3"
	"golang.org/x/oauth2"

	"github.com/castafiore/tunebridge/internal/catalog"
	"github.com/castafiore/tunebridge/internal/download"
	"github.com/castafiore/tunebridge/internal/jobs"
	"github.com/castafiore/tunebridge/internal/match"
	"github.com/castafiore/tunebridge/internal/models"
	"github.com/castafiore/tunebridge/internal/repositories"
	"github.com/castafiore/tunebridge/internal/shared"
)

// defaultOwner scopes CLI-created jobs and playlists when no owner is given.
const defaultOwner = "local"

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config *shared.Config
	logger *log.Logger
	output io.Writer
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config *shared.Config
	Logger *log.Logger
	Output io.Writer
}

// NewRunner creates a new Runner with the provided configuration.
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config: opts.Config,
		logger: opts.Logger,
		output: opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, importCommand, exportCommand, playlistCommand, downloadCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// pipeline bundles the controllers the commands operate on, sharing one
// database handle that Close releases.
type pipeline struct {
	db        *sql.DB
	playlists *repositories.PlaylistRepository
	imports   *jobs.ImportController
	exports   *jobs.ExportController
	downloads *download.Orchestrator
}

func (p *pipeline) Close() error {
	return p.db.Close()
}

// bootstrap opens the database and wires the full controller stack from
// the runner's config. Callers own the returned pipeline and must Close it.
func (r *Runner) bootstrap() (*pipeline, error) {
	cfg := r.config

	db, err := shared.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	shared.ConfigureDatabase(db, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns)

	if err := shared.RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cacheTTL := time.Duration(cfg.Catalog.CacheTTLSecs) * time.Second
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	searchTimeout := time.Duration(cfg.Catalog.SearchTimeoutSecs) * time.Second

	local := catalog.NewLocalAdapter(cfg.Catalog.BaseURL, cfg.Catalog.Username, cfg.Catalog.Password, searchTimeout, shared.NewCache(cacheTTL))
	adapters := []catalog.Adapter{local}

	if adapter := r.spotifyAdapter(); adapter != nil {
		adapters = append(adapters, adapter)
	}

	matcher := match.New(adapters, match.Options{
		MaxCandidates: cfg.Matching.MaxCandidates,
		AutoAcceptGap: cfg.Matching.AutoAcceptGap,
	})

	playlists := repositories.NewPlaylistRepository(db)

	imports := jobs.NewImportController(
		repositories.NewImportJobRepository(db),
		playlists,
		matcher,
		r.logger,
		jobs.ImportOptions{Concurrency: cfg.Matching.Concurrency},
	)

	exports := jobs.NewExportController(repositories.NewExportJobRepository(db), playlists, local, r.logger)

	manager := download.NewCatalogManager(cfg.Downloads.CatalogManagerURL, cfg.Downloads.CatalogManagerAPIKey, 0)
	fetcher := download.NewTrackFetcher(cfg.Downloads.FetcherURL, cfg.Downloads.FetcherFormat, cfg.Downloads.FetcherQuality, 0)

	downloads := download.NewOrchestrator(
		repositories.NewDownloadJobRepository(db),
		manager,
		fetcher,
		r.logger,
		download.Preferences{
			PreferCatalogForAlbums: cfg.Downloads.PreferCatalogForAlbums,
			DefaultService:         models.DownloadService(cfg.Downloads.DefaultService),
		},
	)

	return &pipeline{
		db:        db,
		playlists: playlists,
		imports:   imports,
		exports:   exports,
		downloads: downloads,
	}, nil
}

// spotifyAdapter builds the streaming adapter when credentials and a
// saved token are both available. Missing either just narrows matching
// to the local catalog.
func (r *Runner) spotifyAdapter() catalog.Adapter {
	creds := r.config.Streaming
	if creds.ClientID == "" || creds.ClientSecret == "" {
		return nil
	}

	token, err := loadSpotifyToken()
	if err != nil {
		r.logger.Debug("no saved streaming token", "error", err)
		return nil
	}

	adapter, err := catalog.NewSpotifyAdapter(context.Background(), creds.ClientID, creds.ClientSecret, creds.RedirectURI, token)
	if err != nil {
		r.logger.Warn("streaming adapter unavailable", "error", err)
		return nil
	}

	return adapter
}

func spotifyTokenPath() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".tunebridge", "spotify_token.json"), nil
}

func loadSpotifyToken() (*oauth2.Token, error) {
	path, err := spotifyTokenPath()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrNotAuthenticated, err)
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to parse token file: %w", err)
	}

	return &token, nil
}

func saveSpotifyToken(token *oauth2.Token) (string, error) {
	path, err := spotifyTokenPath()
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create token directory: %w", err)
	}

	data, err := json.MarshalIndent(token, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal token: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("failed to write token file: %w", err)
	}

	return path, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	var output []byte
	var err error

	if pretty {
		output, err = json.MarshalIndent(data, "", "  ")
	} else {
		output, err = json.Marshal(data)
	}

	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}
