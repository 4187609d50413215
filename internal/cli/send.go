package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"github.com/spf13/cobra"
)

const defaultEndpoint = "http://localhost:8080/api/webhooks/nowpayments"

var httpClient = &http.Client{Timeout: 15 * time.Second}

func newSendCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign a JSON payload and POST it to a webhook endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path, _ := cmd.Flags().GetString("file")
			body, err := readPayload(cmd, path)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}
			return signAndDeliver(cmd, body)
		},
	}
	addDeliveryFlags(cmd)
	cmd.Flags().StringP("file", "f", "-", "JSON payload file (- for stdin)")
	return cmd
}

func addDeliveryFlags(cmd *cobra.Command) {
	cmd.Flags().String("url", defaultEndpoint, "webhook endpoint URL")
	cmd.Flags().String("secret", "", "IPN secret (default $NOWPAYMENTS_IPN_SECRET)")
	cmd.Flags().String("signature", "", "send this signature instead of computing one")
}

func signAndDeliver(cmd *cobra.Command, body []byte) error {
	sig, _ := cmd.Flags().GetString("signature")
	if sig == "" {
		secret, err := secretFlag(cmd)
		if err != nil {
			return err
		}
		sig, err = signature.SignRaw(body, secret)
		if err != nil {
			return fmt.Errorf("sign payload: %w", err)
		}
	}

	url, _ := cmd.Flags().GetString("url")
	status, resp, err := deliver(cmd.Context(), url, loadConfig().Webhook.SignatureHeader, sig, body)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d %s\n", status, bytes.TrimSpace(resp))
	if status >= http.StatusBadRequest {
		return fmt.Errorf("endpoint answered %d", status)
	}
	return nil
}

func deliver(ctx context.Context, url, header, sig string, body []byte) (int, []byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(header, sig)

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read response: %w", err)
	}
	return resp.StatusCode, out, nil
}
