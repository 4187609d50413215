package cli

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"github.com/smallbiznis/cryptopay/internal/webhook/repository"
	"github.com/spf13/cobra"
)

func newEventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect the webhook event log",
	}
	cmd.AddCommand(newEventsListCmd())
	return cmd
}

func newEventsListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recent webhook events, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			eventType, _ := cmd.Flags().GetString("type")
			failed, _ := cmd.Flags().GetBool("failed")
			limit, _ := cmd.Flags().GetInt("limit")

			conn, err := openDB(loadConfig())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}

			items, err := repository.Provide().List(cmd.Context(), conn, domain.ListFilter{
				EventType:  domain.EventType(eventType),
				FailedOnly: failed,
				Limit:      limit,
			})
			if err != nil {
				return fmt.Errorf("list events: %w", err)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCREATED\tTYPE\tSIGNED\tPROCESSED\tERROR")
			for _, item := range items {
				errMsg := "-"
				if item.ErrorMessage != nil {
					errMsg = *item.ErrorMessage
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%t\t%s\n",
					item.ID.String(),
					item.CreatedAt.UTC().Format(time.RFC3339),
					item.EventType,
					item.SignatureValid,
					item.ProcessedSuccessfully,
					errMsg,
				)
			}
			return w.Flush()
		},
	}
	cmd.Flags().String("type", "", "only events of this type (payment, invoice, withdrawal, system)")
	cmd.Flags().Bool("failed", false, "only events that were not processed successfully")
	cmd.Flags().Int("limit", 50, "maximum rows to print")
	return cmd
}
