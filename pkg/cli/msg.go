package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harrisonrobin/lifeops/pkg/notify"
)

// NewMsgCommand creates the msg command.
func NewMsgCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "msg <open_id> <content> [text|interactive] [title] [theme]",
		Short: "Send a Feishu message as the bot",
		Long: `Send a text message, or an interactive card with a coloured header and a
markdown body, to a Feishu user by open_id.

Credentials come from the feishu section of the config, the keyring
(lifeops secret set) or FEISHU_APP_ID / FEISHU_APP_SECRET.`,
		Args: cobra.RangeArgs(2, 5),
		RunE: func(cmd *cobra.Command, args []string) error {
			msgType := notify.MsgText
			card := notify.Card{Content: args[1]}
			if len(args) > 2 {
				msgType = args[2]
			}
			if len(args) > 3 {
				card.Title = args[3]
			}
			if len(args) > 4 {
				card.Theme = args[4]
			}
			return runMsg(cmd.Context(), rootOpts, cmd, args[0], msgType, card)
		},
	}
	return cmd
}

func runMsg(ctx context.Context, rootOpts *RootOptions, cmd *cobra.Command, openID, msgType string, card notify.Card) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, _, err := rootOpts.loadConfig()
	if err != nil {
		return err
	}
	m, err := rootOpts.messenger(cfg)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	id, err := m.Send(ctx, openID, msgType, card)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if rootOpts.Format == "json" {
		return json.NewEncoder(out).Encode(map[string]string{"message_id": id})
	}
	fmt.Fprintf(out, "Sent %s message %s\n", msgType, id)
	return nil
}
