package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/yt2pt/internal/lock"
	"github.com/desertthunder/yt2pt/internal/repositories"
	"github.com/desertthunder/yt2pt/internal/services"
	"github.com/desertthunder/yt2pt/internal/shared"
	"github.com/desertthunder/yt2pt/internal/tasks"
	"github.com/desertthunder/yt2pt/internal/telemetry"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
type Runner struct {
	config     *shared.Config
	configPath string
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	journal    *repositories.Journal
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
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
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, syncCommand, runCommand, itemsCommand, statusCommand, runsCommand, serveCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Before loads the configuration named by --config, applies environment overrides and sets the log level.
//
// A missing file keeps the embedded defaults so `setup config` can create one.
func (r *Runner) Before(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	if err := r.loadConfig(cmd.String("config")); err != nil {
		return ctx, err
	}
	if cmd.Bool("verbose") {
		shared.SetLogLevel(r.logger, log.DebugLevel)
	}
	return ctx, nil
}

// After releases the journal connection.
func (r *Runner) After(ctx context.Context, cmd *cli.Command) error {
	if r.journal == nil {
		return nil
	}
	err := r.journal.Close()
	r.journal = nil
	return err
}

func (r *Runner) loadConfig(path string) error {
	r.configPath = path
	config := shared.DefaultConfig()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			loaded, err := shared.LoadConfig(path)
			if err != nil {
				return fmt.Errorf("%w: %w", shared.ErrInvalidConfig, err)
			}
			config = loaded
		} else {
			r.logger.Debug("config file not found, using defaults", "path", path)
		}
	}

	config.ApplyEnv()
	if err := shared.SetLogLevelString(r.logger, config.Log.Level); err != nil {
		return fmt.Errorf("%w: log.level %q", err, config.Log.Level)
	}
	r.config = config
	return nil
}

// SetLogger replaces the logger used by commands and the components they build.
func (r *Runner) SetLogger(logger *log.Logger) {
	r.logger = logger
}

// openJournal opens the configured journal once per process and ensures its schema.
func (r *Runner) openJournal(ctx context.Context) (*repositories.Journal, error) {
	if r.journal != nil {
		return r.journal, nil
	}

	journal, err := repositories.OpenJournal(r.config.Database.Path)
	if err != nil {
		return nil, err
	}
	shared.ConfigureDatabase(journal.DB(), r.config.Database.MaxOpenConns, r.config.Database.MaxIdleConns)

	if err := journal.EnsureSchema(ctx); err != nil {
		journal.Close()
		return nil, err
	}
	r.journal = journal
	return journal, nil
}

// pipeline is everything a migration run needs, built from the configuration.
type pipeline struct {
	journal     *repositories.Journal
	fetcher     *tasks.CatalogFetcher
	coordinator *tasks.Coordinator
	telemetry   *telemetry.Provider
	closeLock   func() error
}

// close flushes telemetry and releases the lock backend. The journal stays open for the caller.
func (p *pipeline) close(ctx context.Context) error {
	return errors.Join(p.telemetry.Shutdown(ctx), p.closeLock())
}

// newFetcher builds a catalog fetcher only; syncing needs no destination settings.
func (r *Runner) newFetcher(ctx context.Context, provider *telemetry.Provider, metrics *telemetry.Metrics) (*tasks.CatalogFetcher, *repositories.Journal, error) {
	if r.config.Source.APIKey == "" {
		return nil, nil, fmt.Errorf("%w: source.api_key", shared.ErrMissingConfig)
	}

	journal, err := r.openJournal(ctx)
	if err != nil {
		return nil, nil, err
	}

	youtube := services.NewYouTubeService(r.config.Source, r.httpClient)
	fetcher := tasks.NewCatalogFetcher(youtube, journal.Channels, journal.Items, r.logger, metrics, provider.Tracer)
	return fetcher, journal, nil
}

// newPipeline validates the configuration and wires the coordinator with its collaborators.
//
// mode overrides destination.mode when not empty.
func (r *Runner) newPipeline(ctx context.Context, mode string) (*pipeline, error) {
	if mode != "" {
		r.config.Destination.Mode = mode
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	transferMode, err := tasks.ParseTransferMode(r.config.Destination.Mode)
	if err != nil {
		return nil, err
	}

	provider, err := telemetry.Init(ctx, r.config.Telemetry, nil)
	if err != nil {
		return nil, err
	}

	metrics, err := telemetry.NewMetrics(provider.Meter)
	if err != nil {
		provider.Shutdown(ctx)
		return nil, err
	}

	fetcher, journal, err := r.newFetcher(ctx, provider, metrics)
	if err != nil {
		provider.Shutdown(ctx)
		return nil, err
	}

	locker, closeLock, err := lock.New(ctx, r.config.Lock, r.logger)
	if err != nil {
		provider.Shutdown(ctx)
		return nil, fmt.Errorf("%w: %w", shared.ErrStorage, err)
	}

	peertube := services.NewPeerTubeService(r.config.Destination, r.httpClient)

	var assets services.AssetClient
	if transferMode == tasks.ModeUpload {
		assets = services.NewAssetClient(r.config.Source, r.httpClient)
	}

	transferer := tasks.NewTransferer(tasks.TransferDeps{
		Items:       journal.Items,
		Assets:      assets,
		Importer:    peertube,
		Tokens:      tasks.NewTokenCache(peertube),
		Locker:      locker,
		Stager:      tasks.NewStager(r.config.Transfer.StagingDir),
		Policy:      tasks.RetryPolicyFromConfig(r.config.Transfer),
		Mode:        transferMode,
		DestChannel: r.config.Destination.ChannelID,
		KeepStaged:  r.config.Transfer.KeepStaged,
		Logger:      r.logger,
		Metrics:     metrics,
		Tracer:      provider.Tracer,
	})

	coordinator := tasks.NewCoordinator(journal, fetcher, transferer, r.config.Transfer.Workers, r.logger)

	return &pipeline{
		journal:     journal,
		fetcher:     fetcher,
		coordinator: coordinator,
		telemetry:   provider,
		closeLock:   closeLock,
	}, nil
}

// logTotals reports the run's counters when telemetry is enabled.
func (r *Runner) logTotals(ctx context.Context, provider *telemetry.Provider) {
	totals, err := provider.Totals(ctx)
	if err != nil {
		r.logger.Warn("failed to collect metrics", "error", err)
		return
	}
	if len(totals) == 0 {
		return
	}
	kv := make([]any, 0, len(totals)*2)
	for name, value := range totals {
		kv = append(kv, name, value)
	}
	r.logger.Info("telemetry totals", kv...)
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
