package domain

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

var escapedNUL = []byte(`\u0000`)

// WebhookData is the copy of a delivery kept on the payment or invoice row:
// the bytes as received when present, else payload re-encoded. Bodies
// carrying an escaped NUL are not storable as jsonb and are kept as null.
func WebhookData(body []byte, payload map[string]any) (datatypes.JSON, error) {
	if bytes.Contains(body, escapedNUL) {
		return datatypes.JSON("null"), nil
	}
	if len(body) > 0 && json.Valid(body) {
		out := make([]byte, len(body))
		copy(out, body)
		return datatypes.JSON(out), nil
	}
	if payload == nil {
		return datatypes.JSON("null"), nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode webhook data: %w", err)
	}
	if bytes.Contains(raw, escapedNUL) {
		return datatypes.JSON("null"), nil
	}
	return datatypes.JSON(raw), nil
}
