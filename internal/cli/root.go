package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/cwygoda/shotgrab/internal/adapter/filestore"
	"github.com/cwygoda/shotgrab/internal/adapter/screenshotapi"
	"github.com/cwygoda/shotgrab/internal/adapter/sqlite"
	"github.com/cwygoda/shotgrab/internal/config"
	"github.com/cwygoda/shotgrab/internal/domain"
	"github.com/cwygoda/shotgrab/internal/logging"
	"github.com/cwygoda/shotgrab/internal/poller"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// app carries state shared by all subcommands.
type app struct {
	configPath string
	apiKey     string
	logLevel   string
	logFormat  string

	stdout io.Writer
	stderr io.Writer

	cfg *config.Config
	log *logrus.Logger
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := NewRootCommand(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "error:", err)
	}
	return ExitCode(err)
}

// NewRootCommand builds the shotgrab command tree.
func NewRootCommand(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr}

	cmd := &cobra.Command{
		Use:           "shotgrab",
		Short:         "Capture web page screenshots through a remote capture service",
		Long:          `shotgrab submits capture jobs to a screenshot service, waits for them to finish and hands back the image URL or a PNG on disk.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	flags := cmd.PersistentFlags()
	flags.StringVarP(&a.configPath, "config", "c", "", "config file path (default $XDG_CONFIG_HOME/shotgrab/config.toml)")
	flags.StringVar(&a.apiKey, "api-key", "", "capture service API key")
	flags.StringVar(&a.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&a.logFormat, "log-format", "", "log format (text, json)")

	cmd.AddCommand(
		newCaptureCommand(a),
		newServeCommand(a),
		newHistoryCommand(a),
	)
	return cmd
}

func (a *app) setup() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if a.apiKey != "" {
		cfg.APIKey = a.apiKey
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.logFormat != "" {
		cfg.Log.Format = a.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log, err := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: a.stderr})
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	return nil
}

// services holds the wired capture stack for one command invocation.
type services struct {
	capture *domain.CaptureService
	history *sqlite.Repository
}

func (s *services) Close() error {
	if s.history == nil {
		return nil
	}
	return s.history.Close()
}

// buildServices wires the capture service from config. pollInterval and
// maxPolls override the configured polling when non-zero.
func (a *app) buildServices(pollInterval time.Duration, maxPolls int) (*services, error) {
	client, err := screenshotapi.NewClient(a.cfg.BaseURL,
		screenshotapi.WithTimeout(a.cfg.Timeout),
		screenshotapi.WithLogger(a.log),
	)
	if err != nil {
		return nil, err
	}

	interval := a.cfg.Poll.Interval
	if pollInterval > 0 {
		interval = pollInterval
	}
	attempts := a.cfg.Poll.MaxAttempts
	if maxPolls > 0 {
		attempts = maxPolls
	}

	opts := []domain.Option{domain.WithLogger(a.log)}
	svc := &services{}
	if a.cfg.History.Enabled {
		repo, err := sqlite.New(a.cfg.History.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open history: %w", err)
		}
		svc.history = repo
		opts = append(opts, domain.WithHistory(repo))
	}

	svc.capture = domain.NewCaptureService(
		client,
		poller.New(client, interval, attempts, a.log),
		client,
		filestore.New(a.log),
		opts...,
	)
	return svc, nil
}

func (a *app) credential() (string, error) {
	key := strings.TrimSpace(a.cfg.APIKey)
	if key == "" {
		return "", fmt.Errorf("api key is required (set api_key, SHOTGRAB_API_KEY or --api-key)")
	}
	return key, nil
}
