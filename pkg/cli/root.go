// Package cli implements the lifeops command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lifeops/pkg/calendar"
	"github.com/harrisonrobin/lifeops/pkg/config"
	"github.com/harrisonrobin/lifeops/pkg/google"
	"github.com/harrisonrobin/lifeops/pkg/notify"
	"github.com/harrisonrobin/lifeops/pkg/secrets"
)

const httpTimeout = 30 * time.Second

// Exit codes.
const (
	ExitSuccess = 0
	ExitFailure = 1 // the command could not run
	ExitPartial = 2 // a sync ran but some items failed
)

// ExitError carries the process exit code for an error.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string { return e.Err.Error() }
func (e *ExitError) Unwrap() error { return e.Err }

// GetExitCode returns the code for err, ExitFailure for plain errors.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// ValidFormats are the accepted --format values.
var ValidFormats = []string{"text", "json"}

// RootOptions holds global flags and the collaborators commands build on.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
	Format     string

	// Overridable in tests.
	Getenv       func(string) string
	Secrets      *secrets.Resolver
	NewCalendar  func(ctx context.Context, cfg google.Config) (calendar.Calendar, error)
	NewMessenger func(cfg notify.Config) (*notify.Messenger, error)
}

func defaultOptions() *RootOptions {
	return &RootOptions{
		Getenv:  os.Getenv,
		Secrets: secrets.NewResolver(),
		NewCalendar: func(ctx context.Context, cfg google.Config) (calendar.Calendar, error) {
			return google.NewClient(ctx, cfg)
		},
		NewMessenger: func(cfg notify.Config) (*notify.Messenger, error) {
			return notify.New(cfg, &http.Client{Timeout: httpTimeout})
		},
	}
}

// NewRootCommand creates the lifeops command.
func NewRootCommand() *cobra.Command {
	return newRootCommand(defaultOptions())
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lifeops",
		Short: "Sync a personal schedule to a calendar and message about it",
		Long: `lifeops keeps a calendar in step with a schedule file, a Taskwarrior
database or a set of Org files. Each run compares the schedule with the last synced snapshot,
creates events for new tasks and deletes the bot's events for removed ones.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "config file (default ~/.config/lifeops/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewMsgCommand(opts))
	cmd.AddCommand(NewAuthCommand(opts))
	cmd.AddCommand(NewSetCalendarCommand(opts))
	cmd.AddCommand(NewSecretCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

func (o *RootOptions) configPath() (string, error) {
	if o.ConfigPath != "" {
		return o.ConfigPath, nil
	}
	return config.GetConfigPath()
}

func (o *RootOptions) loadConfig() (*config.Config, string, error) {
	path, err := o.configPath()
	if err != nil {
		return nil, "", fmt.Errorf("could not find path to configuration file: %w", err)
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// logger writes to w; --verbose adds timestamps and source locations.
func (o *RootOptions) logger(w io.Writer) *log.Logger {
	flags := log.LstdFlags
	if o.Verbose {
		flags |= log.Lmicroseconds | log.Lshortfile
	}
	return log.New(w, "", flags)
}

func (o *RootOptions) getenv(key string) string {
	if o.Getenv == nil {
		return os.Getenv(key)
	}
	return o.Getenv(key)
}

func (o *RootOptions) resolver() *secrets.Resolver {
	if o.Secrets == nil {
		o.Secrets = secrets.NewResolver(secrets.WithGetenv(o.getenv))
	}
	return o.Secrets
}

// messenger builds a Feishu messenger from the config, the keyring and the
// environment.
func (o *RootOptions) messenger(cfg *config.Config) (*notify.Messenger, error) {
	r := o.resolver()
	nc := notify.Config{
		AppID:     r.Get(secrets.FeishuAppID, cfg.Feishu.AppID),
		AppSecret: r.Get(secrets.FeishuAppSecret, cfg.Feishu.AppSecret),
		BaseURL:   cfg.Feishu.BaseURL,
	}
	if o.NewMessenger != nil {
		return o.NewMessenger(nc)
	}
	return notify.New(nc, nil)
}

func (o *RootOptions) googleConfig(cfg *config.Config, logger *log.Logger) google.Config {
	return google.Config{
		CalendarName: cfg.Calendar.Name,
		TimeZone:     cfg.Calendar.TimeZone,
		Attendees:    cfg.Calendar.Attendees,
		Auth:         authConfig(cfg, logger),
		Logger:       logger,
	}
}
