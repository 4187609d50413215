package cli

import (
	"errors"
	"fmt"

	"github.com/smallbiznis/cryptopay/internal/canonicaljson"
	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var errSignatureMismatch = errors.New("signature does not match payload")

func newVerifyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check a signature against a JSON payload",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			sig, _ := cmd.Flags().GetString("signature")
			if sig == "" {
				return fmt.Errorf("--signature is required")
			}
			path, _ := cmd.Flags().GetString("file")
			body, err := readPayload(cmd, path)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			payload, err := canonicaljson.Decode(body)
			if err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}
			secret, err := secretFlag(cmd)
			if err != nil {
				return err
			}
			if !signature.NewVerifier(zap.NewNop()).Verify(payload, sig, secret) {
				return errSignatureMismatch
			}
			fmt.Fprintln(cmd.OutOrStdout(), "signature valid")
			return nil
		},
	}
	cmd.Flags().StringP("file", "f", "-", "JSON payload file (- for stdin)")
	cmd.Flags().String("secret", "", "IPN secret (default $NOWPAYMENTS_IPN_SECRET)")
	cmd.Flags().String("signature", "", "hex signature to check")
	return cmd
}
