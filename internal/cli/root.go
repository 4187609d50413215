package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/smallbiznis/cryptopay/internal/config"
	"github.com/smallbiznis/cryptopay/pkg/db"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// loadConfig and openDB are swapped out in tests.
var (
	loadConfig = config.Load
	openDB     = func(cfg config.Config) (*gorm.DB, error) {
		return db.Open(db.ConfigFrom(cfg), zap.NewNop())
	}
)

// NewRootCmd builds the cryptopayctl command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:   "cryptopayctl",
		Short: "Operator tooling for the NOWPayments webhook endpoint",
		Long: `cryptopayctl signs and verifies IPN payloads, delivers signed payloads to a
running endpoint and replays stored webhook events.

The IPN secret defaults to NOWPAYMENTS_IPN_SECRET.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newSignCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newSendCmd())
	root.AddCommand(newEventsCmd())
	root.AddCommand(newReplayCmd())
	return root
}

// Execute runs the root command
func Execute(version string) error {
	if err := NewRootCmd(version).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// readPayload reads the body from path, or from stdin when path is "-".
func readPayload(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func secretFlag(cmd *cobra.Command) (string, error) {
	secret, _ := cmd.Flags().GetString("secret")
	if secret == "" {
		secret = loadConfig().Webhook.IPNSecret
	}
	if secret == "" {
		return "", fmt.Errorf("no IPN secret: pass --secret or set NOWPAYMENTS_IPN_SECRET")
	}
	return secret, nil
}
