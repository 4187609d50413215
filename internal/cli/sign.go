package cli

import (
	"fmt"

	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"github.com/spf13/cobra"
)

func newSignCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sign",
		Short: "Print the x-nowpayments-sig value for a JSON payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			body, err := readPayload(cmd, path)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			secret, err := secretFlag(cmd)
			if err != nil {
				return err
			}
			sig, err := signature.SignRaw(body, secret)
			if err != nil {
				return fmt.Errorf("sign payload: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), sig)
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "-", "JSON payload file (- for stdin)")
	cmd.Flags().String("secret", "", "IPN secret (default $NOWPAYMENTS_IPN_SECRET)")
	return cmd
}
