package cli

import (
	"fmt"
	"log"
	"os"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lifeops/pkg/auth"
	"github.com/harrisonrobin/lifeops/pkg/config"
	"github.com/harrisonrobin/lifeops/pkg/google"
)

func authConfig(cfg *config.Config, logger *log.Logger) auth.Config {
	return auth.Config{
		CredentialsFile: cfg.Calendar.CredentialsFile,
		TokenFile:       cfg.Calendar.TokenFile,
		Logger:          logger,
	}
}

// NewAuthCommand creates the auth command.
func NewAuthCommand(rootOpts *RootOptions) *cobra.Command {
	var port string
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Authorize lifeops against Google Calendar",
		Long: `Run the OAuth flow for the client in calendar.credentials_file and store
the token in calendar.token_file, replacing any existing token.
Service account keys need no authorization.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := rootOpts.logger(cmd.ErrOrStderr())
			cfg, _, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}

			ac := authConfig(cfg, logger)
			ac.RedirectPort = port
			if _, err := os.Stat(ac.TokenFile); err == nil {
				logger.Printf("Removing existing token file at '%s'", ac.TokenFile)
				if err := os.Remove(ac.TokenFile); err != nil {
					return fmt.Errorf("could not delete token file '%s': %w", ac.TokenFile, err)
				}
			}

			if err := auth.Authorize(cmd.Context(), ac, google.Scopes, cmd.OutOrStdout()); err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful! Token saved to %s\n", ac.TokenFile)
			return nil
		},
	}
	cmd.Flags().StringVar(&port, "port", auth.DefaultRedirectPort, "loopback port for the OAuth redirect")
	return cmd
}

// NewSetCalendarCommand creates the set-calendar command.
func NewSetCalendarCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set-calendar <name>",
		Short: "Set the calendar name in the config file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			cfg.Calendar.Name = args[0]
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := config.Save(path, cfg); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Default calendar set to: %s\n", args[0])
			return nil
		},
	}
}
