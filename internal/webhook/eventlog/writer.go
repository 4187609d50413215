package eventlog

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/cryptopay/internal/clock"
	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"github.com/smallbiznis/cryptopay/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	writeTimeout      = 5 * time.Second
	maxUnparsedBytes  = 8 << 10
	maxErrorMessageLn = 1024
	// source_ip is VARCHAR(64).
	maxSourceIPLn = 64

	degradedRowNote = "payload_not_stored"
)

// Entry is the outcome of one webhook request.
type Entry struct {
	EventType domain.EventType
	// RawBody is stored verbatim when it is valid JSON.
	RawBody               []byte
	SignatureValid        bool
	SourceIP              string
	ProcessedSuccessfully bool
	ErrorMessage          string
}

type Params struct {
	fx.In

	DB    *gorm.DB
	Log   *zap.Logger
	Repo  domain.Repository
	Node  *snowflake.Node
	Clock clock.Clock
}

type Writer struct {
	db    *gorm.DB
	log   *zap.Logger
	repo  domain.Repository
	node  *snowflake.Node
	clock clock.Clock
}

func NewWriter(p Params) *Writer {
	return &Writer{
		db:    p.DB,
		log:   p.Log.Named("webhook.eventlog"),
		repo:  p.Repo,
		node:  p.Node,
		clock: p.Clock,
	}
}

// LogEvent appends one audit row. It never returns an error: on failure
// it logs and returns nil so the webhook response is still sent.
func (w *Writer) LogEvent(ctx context.Context, entry Entry) (logged *domain.WebhookEvent) {
	defer func() {
		if r := recover(); r != nil {
			w.log.Error("webhook event log panicked", zap.Any("panic", r))
			logged = nil
		}
	}()

	eventType := entry.EventType
	if eventType == "" {
		eventType = domain.EventTypeSystem
	}

	event := &domain.WebhookEvent{
		ID:                    w.node.Generate(),
		EventType:             eventType,
		Payload:               storablePayload(entry.RawBody),
		SignatureValid:        entry.SignatureValid,
		SourceIP:              storableText(entry.SourceIP, maxSourceIPLn),
		ProcessedSuccessfully: entry.ProcessedSuccessfully,
		CreatedAt:             w.clock.Now(),
	}
	if entry.ErrorMessage != "" {
		msg := storableText(entry.ErrorMessage, maxErrorMessageLn)
		event.ErrorMessage = &msg
	}

	// The audit row outlives a cancelled request.
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()

	err := w.repo.Insert(writeCtx, w.db, event)
	if db.IsDuplicateKeyErr(err) {
		// Another replica may share this node id.
		event.ID = w.node.Generate()
		err = w.repo.Insert(writeCtx, w.db, event)
	}
	if err != nil && !db.IsDuplicateKeyErr(err) {
		w.log.Warn("webhook event rejected, storing without payload",
			zap.String("event_type", string(eventType)),
			zap.Error(err),
		)
		event = degradedRow(event, w.node.Generate())
		err = w.repo.Insert(writeCtx, w.db, event)
	}
	if err != nil {
		w.log.Error("failed to write webhook event",
			zap.String("event_type", string(eventType)),
			zap.Bool("signature_valid", entry.SignatureValid),
			zap.Bool("processed_successfully", entry.ProcessedSuccessfully),
			zap.Error(err),
		)
		return nil
	}
	return event
}

// degradedRow keeps the outcome columns of event and drops everything a
// store could reject on content.
func degradedRow(event *domain.WebhookEvent, id snowflake.ID) *domain.WebhookEvent {
	msg := degradedRowNote
	if event.ErrorMessage != nil {
		msg = storableText(*event.ErrorMessage+"; "+degradedRowNote, maxErrorMessageLn)
	}
	return &domain.WebhookEvent{
		ID:                    id,
		EventType:             event.EventType,
		Payload:               datatypes.JSON("null"),
		SignatureValid:        event.SignatureValid,
		ProcessedSuccessfully: event.ProcessedSuccessfully,
		ErrorMessage:          &msg,
		CreatedAt:             event.CreatedAt,
	}
}

type unparsedBody struct {
	UnparsedBody string `json:"unparsed_body"`
	Truncated    bool   `json:"truncated,omitempty"`
}

var (
	escapedNUL  = []byte(`\u0000`)
	nulReplacer = strings.NewReplacer("\x00", "\uFFFD", `\u0000`, "\uFFFD")
)

// storablePayload keeps valid JSON bodies as-is and wraps anything else
// so the payload column always holds JSON. NUL characters, raw or escaped,
// are not accepted by jsonb and force the wrapped form.
func storablePayload(raw []byte) datatypes.JSON {
	if len(raw) == 0 {
		return datatypes.JSON("null")
	}
	if json.Valid(raw) && !containsNUL(raw) {
		out := make([]byte, len(raw))
		copy(out, raw)
		return datatypes.JSON(out)
	}
	wrapped := unparsedBody{}
	if len(raw) > maxUnparsedBytes {
		raw = raw[:maxUnparsedBytes]
		wrapped.Truncated = true
	}
	wrapped.UnparsedBody = nulReplacer.Replace(strings.ToValidUTF8(string(raw), "\uFFFD"))
	b, err := json.Marshal(wrapped)
	if err != nil {
		return datatypes.JSON("null")
	}
	return datatypes.JSON(b)
}

func containsNUL(raw []byte) bool {
	return bytes.IndexByte(raw, 0) >= 0 || bytes.Contains(raw, escapedNUL)
}

// storableText makes s valid NUL-free UTF-8 of at most n bytes, cut on a
// rune boundary.
func storableText(s string, n int) string {
	s = strings.ReplaceAll(strings.ToValidUTF8(s, "\uFFFD"), "\x00", "")
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
