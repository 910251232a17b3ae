package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harrisonrobin/lifeops/pkg/secrets"
)

// NewSecretCommand creates the secret command group.
func NewSecretCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secret",
		Short: "Manage secrets in the OS keyring",
		Long: fmt.Sprintf(`Store Feishu credentials in the OS keyring instead of the config file.

Known names: %s`, strings.Join(secrets.Names(), ", ")),
	}
	cmd.AddCommand(newSecretSetCommand(rootOpts))
	cmd.AddCommand(newSecretDeleteCommand(rootOpts))
	cmd.AddCommand(newSecretStatusCommand(rootOpts))
	return cmd
}

func newSecretSetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name> [value]",
		Short: "Store a secret; the value is read from stdin when omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			value := ""
			if len(args) == 2 {
				value = args[1]
			} else {
				v, err := readSecret(cmd.InOrStdin(), cmd.ErrOrStderr(), args[0])
				if err != nil {
					return err
				}
				value = v
			}
			if err := rootOpts.resolver().Set(args[0], value); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Stored %s in keyring\n", args[0])
			return nil
		},
	}
}

func newSecretDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name>",
		Short: "Remove a secret from the keyring",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := rootOpts.resolver().Delete(args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s from keyring\n", args[0])
			return nil
		},
	}
}

func newSecretStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show where each secret would be read from",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := rootOpts.loadConfig()
			if err != nil {
				return err
			}
			configured := map[string]string{
				secrets.FeishuAppID:     cfg.Feishu.AppID,
				secrets.FeishuAppSecret: cfg.Feishu.AppSecret,
				secrets.FeishuUserID:    cfg.Feishu.NotifyOpenID,
			}
			out := cmd.OutOrStdout()
			for _, name := range secrets.Names() {
				_, src, err := rootOpts.resolver().Lookup(name, configured[name])
				if err != nil {
					src = "missing"
				}
				fmt.Fprintf(out, "%-18s %s\n", name, src)
			}
			return nil
		},
	}
}

// readSecret prompts without echo on a terminal and reads one line
// otherwise.
func readSecret(in io.Reader, prompt io.Writer, name string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(prompt, "Value for %s: ", name)
		b, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(prompt)
		if err != nil {
			return "", fmt.Errorf("unable to read secret: %w", err)
		}
		return strings.TrimSpace(string(b)), nil
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("unable to read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
