package cli

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cryptopay/internal/canonicaljson"
	"github.com/smallbiznis/cryptopay/internal/webhook/repository"
	"github.com/spf13/cobra"
)

var errNotReplayable = errors.New("stored payload is not a replayable JSON body")

func newReplayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay <event-id>",
		Short: "Re-deliver a stored webhook event, freshly signed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := snowflake.ParseString(args[0])
			if err != nil {
				return fmt.Errorf("invalid event id %q", args[0])
			}

			conn, err := openDB(loadConfig())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			event, err := repository.Provide().FindByID(cmd.Context(), conn, id)
			if err != nil {
				return fmt.Errorf("load event %s: %w", id, err)
			}

			body := []byte(event.Payload)
			if err := checkReplayable(body); err != nil {
				return fmt.Errorf("event %s: %w", id, err)
			}
			return signAndDeliver(cmd, body)
		},
	}
	addDeliveryFlags(cmd)
	return cmd
}

// checkReplayable rejects rows whose payload was stored as null or as the
// unparsed_body wrapper of a malformed request.
func checkReplayable(body []byte) error {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return errNotReplayable
	}
	payload, err := canonicaljson.Decode(trimmed)
	if err != nil {
		return errNotReplayable
	}
	if obj, ok := payload.(map[string]any); ok {
		if _, wrapped := obj["unparsed_body"]; wrapped {
			return errNotReplayable
		}
	}
	return nil
}
