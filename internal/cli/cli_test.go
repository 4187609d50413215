package cli

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/smallbiznis/cryptopay/internal/config"
	"github.com/smallbiznis/cryptopay/internal/migration"
	"github.com/smallbiznis/cryptopay/internal/webhook/domain"
	"github.com/smallbiznis/cryptopay/internal/webhook/repository"
	"github.com/smallbiznis/cryptopay/internal/webhook/signature"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const examplePayload = `{"payment_id":"PAY-123","payment_status":"finished","actually_paid":100.5,"pay_currency":"btc"}`

func useConfig(t *testing.T, cfg config.Config) {
	t.Helper()
	prev := loadConfig
	loadConfig = func() config.Config { return cfg }
	t.Cleanup(func() { loadConfig = prev })
}

func useDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, migration.AutoMigrate(conn))

	prev := openDB
	openDB = func(config.Config) (*gorm.DB, error) { return conn, nil }
	t.Cleanup(func() { openDB = prev })
	return conn
}

func testConfig(secret string) config.Config {
	return config.Config{Webhook: config.WebhookConfig{
		IPNSecret:       secret,
		SignatureHeader: config.DefaultSignatureHeader,
	}}
}

func run(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCmd("test")
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestSignFromStdin(t *testing.T) {
	useConfig(t, testConfig(""))

	out, err := run(t, examplePayload, "sign", "--secret", "s3cr3t")
	require.NoError(t, err)

	want, err := signature.SignRaw([]byte(examplePayload), "s3cr3t")
	require.NoError(t, err)
	assert.Equal(t, want+"\n", out)
	assert.Len(t, strings.TrimSpace(out), 128)
}

func TestSignFromFileUsesConfiguredSecret(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	path := filepath.Join(t.TempDir(), "payload.json")
	require.NoError(t, os.WriteFile(path, []byte(examplePayload), 0o600))

	out, err := run(t, "", "sign", "--file", path)
	require.NoError(t, err)

	want, _ := signature.SignRaw([]byte(examplePayload), "s3cr3t")
	assert.Equal(t, want, strings.TrimSpace(out))
}

func TestSignWithoutSecretFails(t *testing.T) {
	useConfig(t, testConfig(""))

	_, err := run(t, examplePayload, "sign")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NOWPAYMENTS_IPN_SECRET")
}

func TestVerify(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	sig, _ := signature.SignRaw([]byte(examplePayload), "s3cr3t")

	out, err := run(t, examplePayload, "verify", "--signature", sig)
	require.NoError(t, err)
	assert.Equal(t, "signature valid\n", out)

	_, err = run(t, examplePayload, "verify", "--signature", "deadbeef")
	assert.ErrorIs(t, err, errSignatureMismatch)

	_, err = run(t, examplePayload, "verify")
	assert.Error(t, err)
}

type captured struct {
	header string
	body   string
}

func newEndpoint(t *testing.T, status int, got *captured) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		got.header = r.Header.Get(config.DefaultSignatureHeader)
		got.body = string(b)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"success":true,"processed":true}`))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSendSignsAndPosts(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	var got captured
	srv := newEndpoint(t, http.StatusOK, &got)

	out, err := run(t, examplePayload, "send", "--url", srv.URL)
	require.NoError(t, err)

	want, _ := signature.SignRaw([]byte(examplePayload), "s3cr3t")
	assert.Equal(t, want, got.header)
	assert.Equal(t, examplePayload, got.body)
	assert.Equal(t, "200 {\"success\":true,\"processed\":true}\n", out)
}

func TestSendExplicitSignatureAndErrorStatus(t *testing.T) {
	useConfig(t, testConfig(""))
	var got captured
	srv := newEndpoint(t, http.StatusUnauthorized, &got)

	_, err := run(t, examplePayload, "send", "--url", srv.URL, "--signature", "deadbeef")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, "deadbeef", got.header)
}

var testNode = func() *snowflake.Node {
	node, err := snowflake.NewNode(2)
	if err != nil {
		panic(err)
	}
	return node
}()

func insertEvent(t *testing.T, conn *gorm.DB, eventType domain.EventType, payload string, processed bool) snowflake.ID {
	t.Helper()
	event := &domain.WebhookEvent{
		ID:                    testNode.Generate(),
		EventType:             eventType,
		Payload:               datatypes.JSON(payload),
		SignatureValid:        true,
		SourceIP:              "203.0.113.7",
		ProcessedSuccessfully: processed,
		CreatedAt:             time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	if !processed {
		msg := "payment_not_found"
		event.ErrorMessage = &msg
	}
	require.NoError(t, repository.Provide().Insert(t.Context(), conn, event))
	return event.ID
}

func TestEventsListFilters(t *testing.T) {
	useConfig(t, testConfig(""))
	conn := useDB(t)
	ok := insertEvent(t, conn, domain.EventTypePayment, examplePayload, true)
	failed := insertEvent(t, conn, domain.EventTypePayment, examplePayload, false)
	system := insertEvent(t, conn, domain.EventTypeSystem, `{"ping":true}`, true)

	out, err := run(t, "", "events", "list", "--type", "payment", "--failed")
	require.NoError(t, err)
	assert.Contains(t, out, failed.String())
	assert.Contains(t, out, "payment_not_found")
	assert.NotContains(t, out, ok.String())
	assert.NotContains(t, out, system.String())

	out, err = run(t, "", "events", "list")
	require.NoError(t, err)
	assert.Equal(t, 4, len(strings.Split(strings.TrimSpace(out), "\n")))
}

func TestReplayResignsStoredPayload(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	conn := useDB(t)
	id := insertEvent(t, conn, domain.EventTypePayment, examplePayload, false)
	var got captured
	srv := newEndpoint(t, http.StatusOK, &got)

	_, err := run(t, "", "replay", id.String(), "--url", srv.URL)
	require.NoError(t, err)

	want, _ := signature.SignRaw([]byte(examplePayload), "s3cr3t")
	assert.Equal(t, want, got.header)
	assert.JSONEq(t, examplePayload, got.body)
}

func TestReplayRefusesUnparsedBody(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	conn := useDB(t)
	id := insertEvent(t, conn, domain.EventTypeSystem, `{"unparsed_body":"{not json"}`, false)

	_, err := run(t, "", "replay", id.String(), "--url", "http://127.0.0.1:0")
	assert.ErrorIs(t, err, errNotReplayable)
}

func TestReplayUnknownEvent(t *testing.T) {
	useConfig(t, testConfig("s3cr3t"))
	useDB(t)

	_, err := run(t, "", "replay", "12345", "--url", "http://127.0.0.1:0")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)

	_, err = run(t, "", "replay", "not-an-id")
	assert.Error(t, err)
}

func TestCheckReplayable(t *testing.T) {
	assert.NoError(t, checkReplayable([]byte(examplePayload)))
	assert.ErrorIs(t, checkReplayable([]byte("null")), errNotReplayable)
	assert.ErrorIs(t, checkReplayable(nil), errNotReplayable)
	assert.ErrorIs(t, checkReplayable([]byte(`{"unparsed_body":"x","truncated":true}`)), errNotReplayable)
}
