package commands

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/hypley-ai/hypley-live/pkg/store"
)

func newHistoryCmd() *cobra.Command {
	var (
		gateway string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history [conversation-id]",
		Short: "List conversations or the messages of one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := newGatewayClient(gateway, &http.Client{Timeout: 30 * time.Second})
			if err != nil {
				return err
			}
			if len(args) == 1 {
				return printMessages(cmd.Context(), client, args[0], limit, cmd.OutOrStdout())
			}
			return printConversations(cmd.Context(), client, limit, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&gateway, "gateway", envOrDefault("HYPLEY_GATEWAY_URL", defaultGatewayURL), "gateway base URL (or HYPLEY_GATEWAY_URL)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum rows")
	return cmd
}

func printConversations(ctx context.Context, client *gatewayClient, limit int, out io.Writer) error {
	convs, err := client.conversations(ctx, limit)
	if err != nil {
		return err
	}
	if len(convs) == 0 {
		fmt.Fprintln(out, "nenhuma conversa")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTÍTULO\tMENSAGENS\tATUALIZADA")
	for _, c := range convs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", c.ID, c.Title, c.Messages, c.UpdatedAt.Local().Format("02/01/2006 15:04"))
	}
	return tw.Flush()
}

func printMessages(ctx context.Context, client *gatewayClient, conversationID string, limit int, out io.Writer) error {
	msgs, err := client.messages(ctx, conversationID, limit)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		who := "você"
		if m.Role == store.RoleModel {
			who = "hypley"
			if m.Agent != "" {
				who += " (" + m.Agent + ")"
			}
		}
		fmt.Fprintf(out, "[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04"), who, m.Text)
	}
	return nil
}
