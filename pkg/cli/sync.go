package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lifeops/pkg/calendar"
	"github.com/harrisonrobin/lifeops/pkg/config"
	"github.com/harrisonrobin/lifeops/pkg/notify"
	"github.com/harrisonrobin/lifeops/pkg/orgmode"
	"github.com/harrisonrobin/lifeops/pkg/secrets"
	"github.com/harrisonrobin/lifeops/pkg/source"
	"github.com/harrisonrobin/lifeops/pkg/state"
	"github.com/harrisonrobin/lifeops/pkg/syncer"
	"github.com/harrisonrobin/lifeops/pkg/taskwarrior"
)

// PolicyEnv overrides sync.missing_state.
const PolicyEnv = "LIFEOPS_STATE_POLICY"

type syncOptions struct {
	bootstrap bool
	dryRun    bool
	calendar  string
	source    string
	schedule  string
	notify    bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &syncOptions{}
	cmd := &cobra.Command{
		Use:     "sync",
		Aliases: []string{"diff_sync"},
		Short:   "Bring the calendar in line with the current schedule",
		Long: `Compare the current schedule with the last synced snapshot, create events
for new tasks, delete the bot's events for removed tasks and save the
snapshot for the next run.

Exit status is 1 when the sync could not run and 2 when it ran but some
creates or deletes failed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), rootOpts, opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.bootstrap, "bootstrap", false, "treat a missing or unreadable state as empty (creates everything)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the plan without touching the calendar or the state")
	cmd.Flags().StringVar(&opts.calendar, "calendar", "", "calendar name (overrides config)")
	cmd.Flags().StringVar(&opts.source, "source", "", "task source: file, taskwarrior, taskwarrior-stdin or orgmode (overrides config)")
	cmd.Flags().StringVar(&opts.schedule, "schedule", "", "schedule file (overrides config)")
	cmd.Flags().BoolVar(&opts.notify, "notify", false, "send the run summary to Feishu even if notify_on_sync is off")

	return cmd
}

func runSync(ctx context.Context, rootOpts *RootOptions, opts *syncOptions, cmd *cobra.Command) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := rootOpts.logger(cmd.ErrOrStderr())

	cfg, _, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	applySyncFlags(cfg, opts)

	policy, err := resolvePolicy(cfg, rootOpts.getenv(PolicyEnv), opts.bootstrap)
	if err != nil {
		return err
	}

	src, err := buildSource(cfg, cmd.InOrStdin(), logger)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	var cal calendar.Calendar
	if !opts.dryRun {
		cal, err = rootOpts.NewCalendar(ctx, rootOpts.googleConfig(cfg, logger))
		if err != nil {
			return fmt.Errorf("unable to connect to calendar %q: %w", cfg.Calendar.Name, err)
		}
	}

	executor := syncer.New(src, store, cal, syncer.Options{
		Policy:          policy,
		Marker:          cfg.Sync.Marker,
		Zone:            cfg.Zone(),
		DeletionPadding: cfg.Sync.DeletionPadding,
		CarryFailures:   cfg.Sync.CarryFailures,
		DryRun:          opts.dryRun,
		Logger:          logger,
	})
	rep := executor.Run(ctx)

	if err := writeReport(cmd.OutOrStdout(), rootOpts.Format, rep); err != nil {
		return err
	}

	if (cfg.Feishu.NotifyOnSync || opts.notify) && !opts.dryRun {
		notifySync(ctx, rootOpts, cfg, rep, logger)
	}

	switch {
	case rep.Fatal != "":
		return &ExitError{Code: ExitFailure, Err: rep.Err()}
	case rep.Failed():
		return &ExitError{Code: ExitPartial, Err: rep.Err()}
	}
	return nil
}

func applySyncFlags(cfg *config.Config, opts *syncOptions) {
	if opts.calendar != "" {
		cfg.Calendar.Name = opts.calendar
	}
	if opts.source != "" {
		cfg.Sync.Source = opts.source
	}
	if opts.schedule != "" {
		cfg.Sync.ScheduleFile = opts.schedule
	}
}

// resolvePolicy applies, in increasing precedence, the config, the
// environment and --bootstrap.
func resolvePolicy(cfg *config.Config, env string, bootstrap bool) (state.Policy, error) {
	if bootstrap {
		return state.Bootstrap, nil
	}
	if env != "" {
		p, err := state.ParsePolicy(env)
		if err != nil {
			return "", fmt.Errorf("%s: %w", PolicyEnv, err)
		}
		return p, nil
	}
	return cfg.Policy()
}

func buildSource(cfg *config.Config, stdin io.Reader, logger *log.Logger) (source.Source, error) {
	switch cfg.Sync.Source {
	case config.SourceFile:
		return source.NewFile(cfg.Sync.ScheduleFile), nil
	case config.SourceTaskwarrior:
		tw := taskwarrior.NewClient(cfg.Sync.TaskwarriorFilter, cfg.Zone())
		tw.Logger = logger
		return tw, nil
	case config.SourceTaskwarriorStdin:
		tw := taskwarrior.NewReaderClient(stdin, cfg.Zone())
		tw.Logger = logger
		return tw, nil
	case config.SourceOrgmode:
		org := orgmode.NewSource(cfg.Sync.OrgFiles, cfg.Sync.OrgTag)
		org.Logger = logger
		return org, nil
	}
	return nil, fmt.Errorf("unknown task source %q", cfg.Sync.Source)
}

// openStore opens the configured state backend. For sqlite a .json
// state_path is swapped for a .db file next to it.
func openStore(cfg *config.Config) (state.Store, func(), error) {
	switch cfg.Sync.StateBackend {
	case config.BackendFile:
		return state.NewFileStore(cfg.Sync.StatePath), func() {}, nil
	case config.BackendSQLite:
		path := cfg.Sync.StatePath
		if filepath.Ext(path) == ".json" {
			path = strings.TrimSuffix(path, ".json") + ".db"
		}
		s, err := state.OpenSQLiteStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	}
	return nil, nil, fmt.Errorf("unknown state backend %q", cfg.Sync.StateBackend)
}

func writeReport(w io.Writer, format string, rep *syncer.Report) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Fprintf(w, "Sync %s: %s\n", rep.RunID, rep.Summary())
	for _, it := range rep.Items {
		line := fmt.Sprintf("  %-13s %s  %s", it.Outcome, it.Start.Local().Format("2006-01-02 15:04"), it.Title)
		if it.Error != "" {
			line += "  (" + it.Error + ")"
		}
		fmt.Fprintln(w, line)
	}
	for _, m := range rep.Malformed {
		fmt.Fprintf(w, "  malformed     %s #%d: %s\n", m.Side, m.Index, m.Reason)
	}
	for _, wn := range rep.Warnings {
		fmt.Fprintf(w, "  warning       %s #%d: %s\n", wn.Side, wn.Index, wn.Message)
	}
	if rep.StateOrigin != "" && rep.StateOrigin != state.OriginStore {
		fmt.Fprintf(w, "  state: %s\n", rep.StateOrigin)
	}
	return nil
}

// notifySync sends the report card. Failures are logged only.
func notifySync(ctx context.Context, rootOpts *RootOptions, cfg *config.Config, rep *syncer.Report, logger *log.Logger) {
	openID := rootOpts.resolver().Get(secrets.FeishuUserID, cfg.Feishu.NotifyOpenID)
	if openID == "" {
		logger.Printf("Skipping sync notification: no recipient (feishu.notify_open_id or $%s)", secrets.EnvName(secrets.FeishuUserID))
		return
	}
	m, err := rootOpts.messenger(cfg)
	if err != nil {
		logger.Printf("Skipping sync notification: %v", err)
		return
	}
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()
	card := notify.Card{Title: "LifeOps sync " + time.Now().Format("01-02 15:04"), Theme: rep.Theme(), Content: rep.Markdown()}
	if _, err := m.SendCard(ctx, openID, card); err != nil {
		logger.Printf("Warning: could not send sync notification: %v", err)
	}
}
