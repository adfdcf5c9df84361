package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/subcord/internal/discord"
	"github.com/desertthunder/subcord/internal/services"
	"github.com/desertthunder/subcord/internal/shared"
	"github.com/desertthunder/subcord/internal/tasks"
	"github.com/desertthunder/subcord/internal/ui"
	"github.com/urfave/cli/v3"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// Dependencies left nil are built from the loaded configuration on first use.
type Runner struct {
	config     *shared.Config
	configPath string
	upstream   services.Upstream
	sink       tasks.Sink
	httpClient *http.Client
	logger     *log.Logger
	logCloser  io.Closer
	ownLogger  bool
	output     io.Writer
	palette    *ui.Palette
}

// RunnerOpts contains configuration options for creating a Runner.
type RunnerOpts struct {
	Config     *shared.Config // Skips loading from ConfigPath when set
	ConfigPath string
	Upstream   services.Upstream
	Sink       tasks.Sink
	HTTPClient *http.Client // Defaults to a client bounded by subsonic.timeout_seconds
	Logger     *log.Logger
	Output     io.Writer
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	ownLogger := opts.Logger == nil
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		upstream:   opts.Upstream,
		sink:       opts.Sink,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		ownLogger:  ownLogger,
		output:     opts.Output,
		palette:    ui.Default,
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		runCommand, pingCommand, nowCommand, configCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// Close releases the log file, if one was opened.
func (r *Runner) Close() error {
	if r.logCloser == nil {
		return nil
	}
	return r.logCloser.Close()
}

// loadConfig reads the config file, applies environment overrides and validates the result.
//
// A missing file is not an error: the defaults plus environment may be enough.
func (r *Runner) loadConfig() (*shared.Config, error) {
	if r.config != nil {
		return r.config, nil
	}

	cfg, err := shared.LoadConfig(r.configPath)
	if errors.Is(err, shared.ErrMissingConfig) {
		r.logger.Debug("config file not found, using defaults and environment", "path", r.configPath)
		cfg = shared.DefaultConfig()
		cfg.Subsonic.Username, cfg.Subsonic.Password = "", ""
	} else if err != nil {
		return nil, err
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if r.ownLogger {
		r.logger, r.logCloser = shared.NewLoggerFromConfig(cfg.Log)
	}

	r.config = cfg
	return cfg, nil
}

func (r *Runner) upstreamFor(cfg *shared.Config) services.Upstream {
	if r.upstream == nil {
		r.upstream = services.NewSubsonicService(cfg.Subsonic.URL, cfg.Subsonic.Username, cfg.Subsonic.Password, r.httpClientFor(cfg))
	}
	return r.upstream
}

func (r *Runner) httpClientFor(cfg *shared.Config) *http.Client {
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: cfg.Subsonic.Timeout()}
	}
	return r.httpClient
}

func (r *Runner) sinkFor(cfg *shared.Config) tasks.Sink {
	if r.sink == nil {
		r.sink = discord.NewClient(cfg.Discord.ClientID, shared.WithLogger(r.logger, "component", "discord"))
	}
	return r.sink
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
