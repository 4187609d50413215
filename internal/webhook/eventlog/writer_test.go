package eventlog_test

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/cryptopay/internal/clock"
	"github.com/smallbiznis/cryptopay/internal/migration"
	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"github.com/smallbiznis/cryptopay/internal/webhook/eventlog"
	"github.com/smallbiznis/cryptopay/internal/webhook/repository"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type failingRepo struct {
	domain.Repository
}

func (failingRepo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	return errors.New("insert rejected")
}

func TestLogEventPersistsRow(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, repository.Provide())

	body := []byte(`{"payment_id":"PAY-1","payment_status":"finished"}`)
	event := writer.LogEvent(context.Background(), eventlog.Entry{
		EventType:             domain.EventTypePayment,
		RawBody:               body,
		SignatureValid:        true,
		SourceIP:              "203.0.113.1",
		ProcessedSuccessfully: false,
		ErrorMessage:          "payment_not_found: PAY-1",
	})
	if event == nil {
		t.Fatalf("expected logged event")
	}

	stored, err := repository.Provide().FindByID(context.Background(), db, event.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.EventType != domain.EventTypePayment || !stored.SignatureValid || stored.ProcessedSuccessfully {
		t.Fatalf("unexpected stored row %+v", stored)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "payment_not_found: PAY-1" {
		t.Fatalf("unexpected error message %v", stored.ErrorMessage)
	}
	if stored.SourceIP != "203.0.113.1" {
		t.Fatalf("unexpected source ip %q", stored.SourceIP)
	}
	var payload map[string]any
	if err := json.Unmarshal(stored.Payload, &payload); err != nil || payload["payment_id"] != "PAY-1" {
		t.Fatalf("expected verbatim payload, got %s (%v)", stored.Payload, err)
	}
}

func TestLogEventWrapsUnparsedBody(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, repository.Provide())

	event := writer.LogEvent(context.Background(), eventlog.Entry{
		RawBody: []byte(`{not json`),
	})
	if event == nil {
		t.Fatalf("expected logged event")
	}
	if event.EventType != domain.EventTypeSystem {
		t.Fatalf("expected system event type, got %s", event.EventType)
	}
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("payload must be JSON: %v", err)
	}
	if payload["unparsed_body"] != "{not json" {
		t.Fatalf("unexpected payload %v", payload)
	}
}

func TestLogEventSwallowsStoreErrors(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, failingRepo{})

	event := writer.LogEvent(context.Background(), eventlog.Entry{
		EventType: domain.EventTypeSystem,
		RawBody:   []byte(`{}`),
	})
	if event != nil {
		t.Fatalf("expected nil on store failure")
	}
}

type collidingRepo struct {
	domain.Repository
	collisions int
}

func (r *collidingRepo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	if r.collisions > 0 {
		r.collisions--
		return gorm.ErrDuplicatedKey
	}
	return r.Repository.Insert(ctx, db, event)
}

func TestLogEventRetriesIDCollisionOnce(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, &collidingRepo{Repository: repository.Provide(), collisions: 1})

	if event := writer.LogEvent(context.Background(), eventlog.Entry{RawBody: []byte(`{}`)}); event == nil {
		t.Fatalf("expected retry after id collision")
	}

	writer = newWriter(t, db, &collidingRepo{Repository: repository.Provide(), collisions: 2})
	if event := writer.LogEvent(context.Background(), eventlog.Entry{RawBody: []byte(`{}`)}); event != nil {
		t.Fatalf("expected nil after repeated collisions")
	}
}

func TestLogEventSurvivesCancelledRequest(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, repository.Provide())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if event := writer.LogEvent(ctx, eventlog.Entry{RawBody: []byte(`{}`)}); event == nil {
		t.Fatalf("expected audit row despite cancelled context")
	}
}

func TestLogEventClampsSourceIP(t *testing.T) {
	db := setupStrictDB(t)
	writer := newWriter(t, db, repository.Provide())

	event := writer.LogEvent(context.Background(), eventlog.Entry{
		EventType: domain.EventTypePayment,
		RawBody:   []byte(`{"payment_id":"PAY-1","payment_status":"finished"}`),
		SourceIP:  strings.Repeat("9", 80),
	})
	if event == nil {
		t.Fatalf("expected audit row for oversized source ip")
	}
	if len(event.SourceIP) != 64 {
		t.Fatalf("expected source ip clamped to 64 bytes, got %d", len(event.SourceIP))
	}
	assertRowCount(t, db, 1)
}

func TestLogEventWrapsEscapedNUL(t *testing.T) {
	db := setupStrictDB(t)
	writer := newWriter(t, db, repository.Provide())

	body := []byte(`{"payment_id":"PAY-1","payment_status":"finished","x":"\u0000"}`)
	event := writer.LogEvent(context.Background(), eventlog.Entry{
		EventType:    domain.EventTypePayment,
		RawBody:      body,
		ErrorMessage: "invalid_signature",
	})
	if event == nil {
		t.Fatalf("expected audit row for body with escaped NUL")
	}
	var payload map[string]any
	if err := json.Unmarshal(event.Payload, &payload); err != nil {
		t.Fatalf("payload must be JSON: %v", err)
	}
	if _, ok := payload["unparsed_body"]; !ok {
		t.Fatalf("expected wrapped payload, got %s", event.Payload)
	}
	assertRowCount(t, db, 1)

	if event := writer.LogEvent(context.Background(), eventlog.Entry{RawBody: []byte("a\x00b")}); event == nil {
		t.Fatalf("expected audit row for body with raw NUL")
	}
	assertRowCount(t, db, 2)
}

type contentRejectingRepo struct {
	domain.Repository
}

func (r contentRejectingRepo) Insert(ctx context.Context, db *gorm.DB, event *domain.WebhookEvent) error {
	if string(event.Payload) != "null" {
		return errors.New("invalid input syntax for type json")
	}
	return r.Repository.Insert(ctx, db, event)
}

func TestLogEventFallsBackToRowWithoutPayload(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, contentRejectingRepo{Repository: repository.Provide()})

	event := writer.LogEvent(context.Background(), eventlog.Entry{
		EventType:      domain.EventTypePayment,
		RawBody:        []byte(`{"payment_id":"PAY-1"}`),
		SignatureValid: false,
		SourceIP:       "203.0.113.1",
		ErrorMessage:   "invalid_signature",
	})
	if event == nil {
		t.Fatalf("expected fallback row")
	}

	stored, err := repository.Provide().FindByID(context.Background(), db, event.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.EventType != domain.EventTypePayment || stored.SignatureValid {
		t.Fatalf("unexpected stored row %+v", stored)
	}
	if stored.ErrorMessage == nil || *stored.ErrorMessage != "invalid_signature; payload_not_stored" {
		t.Fatalf("unexpected error message %v", stored.ErrorMessage)
	}
	assertRowCount(t, db, 1)
}

func TestLogEventErrorMessageStaysValidUTF8(t *testing.T) {
	db := setupTestDB(t)
	writer := newWriter(t, db, repository.Provide())

	msg := "payment_not_found: " + strings.Repeat("é", 600)
	event := writer.LogEvent(context.Background(), eventlog.Entry{RawBody: []byte(`{}`), ErrorMessage: msg})
	if event == nil || event.ErrorMessage == nil {
		t.Fatalf("expected logged error message")
	}
	if !utf8.ValidString(*event.ErrorMessage) {
		t.Fatalf("error message is not valid UTF-8")
	}
	if len(*event.ErrorMessage) > 1024 || !strings.HasPrefix(msg, *event.ErrorMessage) {
		t.Fatalf("unexpected truncation to %d bytes", len(*event.ErrorMessage))
	}
}

func newWriter(t *testing.T, db *gorm.DB, repo domain.Repository) *eventlog.Writer {
	t.Helper()
	node, err := snowflake.NewNode(3)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	return eventlog.NewWriter(eventlog.Params{
		DB:    db,
		Log:   zap.NewNop(),
		Repo:  repo,
		Node:  node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)),
	})
}

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := migration.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// setupStrictDB mirrors the postgres column limits: source_ip is
// VARCHAR(64) and jsonb refuses NUL characters.
func setupStrictDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.Exec(`CREATE TABLE webhook_events (
		id INTEGER PRIMARY KEY,
		event_type VARCHAR(32) NOT NULL,
		payload TEXT CHECK (instr(payload, '\u0000') = 0 AND instr(payload, char(0)) = 0),
		signature_valid BOOLEAN NOT NULL,
		source_ip VARCHAR(64) CHECK (length(source_ip) <= 64),
		processed_successfully BOOLEAN NOT NULL,
		error_message TEXT,
		created_at DATETIME NOT NULL
	)`).Error
	if err != nil {
		t.Fatalf("create table: %v", err)
	}
	return db
}

func assertRowCount(t *testing.T, db *gorm.DB, expected int64) {
	t.Helper()
	var count int64
	if err := db.Raw("SELECT COUNT(1) FROM webhook_events").Scan(&count).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != expected {
		t.Fatalf("expected %d rows, got %d", expected, count)
	}
}
