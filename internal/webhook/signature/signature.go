package signature

import (
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/smallbiznis/cryptopay/internal/canonicaljson"
	"go.uber.org/zap"
)

var ErrMissingSecret = errors.New("missing_ipn_secret")

// Verifier checks x-nowpayments-sig values: lowercase hex HMAC-SHA512 of the
// canonical JSON body keyed with the IPN secret.
type Verifier struct {
	log *zap.Logger
}

func NewVerifier(log *zap.Logger) *Verifier {
	if log == nil {
		log = zap.NewNop()
	}
	return &Verifier{log: log.Named("webhook.signature")}
}

// Verify reports whether suppliedHex is the signature of payload under
// secret. It never panics and fails closed on any missing input.
func (v *Verifier) Verify(payload any, suppliedHex, secret string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			v.log.Error("signature verification panicked")
			ok = false
		}
	}()

	suppliedHex = strings.TrimSpace(suppliedHex)
	if suppliedHex == "" {
		v.log.Debug("signature verification failed", zap.String("reason", "missing_signature"))
		return false
	}
	if secret == "" {
		v.log.Warn("signature verification failed", zap.String("reason", "missing_secret"))
		return false
	}

	supplied, err := hex.DecodeString(suppliedHex)
	if err != nil {
		v.log.Debug("signature verification failed", zap.String("reason", "malformed_signature"))
		return false
	}

	expected, err := compute(payload, secret)
	if err != nil {
		v.log.Debug("signature verification failed", zap.String("reason", "canonicalization_failed"), zap.Error(err))
		return false
	}

	ok = hmac.Equal(supplied, expected)

	fields := []zap.Field{
		zap.Bool("verified", ok),
		zap.Int("supplied_bytes", len(supplied)),
		zap.Int("expected_bytes", len(expected)),
	}
	if obj, isObj := payload.(map[string]any); isObj {
		fields = append(fields, zap.Strings("payload_keys", canonicaljson.SortedKeys(obj)))
	}
	v.log.Debug("signature verification", fields...)

	return ok
}

// Sign returns the lowercase hex signature the provider would send for payload.
func Sign(payload any, secret string) (string, error) {
	if secret == "" {
		return "", ErrMissingSecret
	}
	sum, err := compute(payload, secret)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sum), nil
}

// SignRaw decodes body and signs its canonical form.
func SignRaw(body []byte, secret string) (string, error) {
	payload, err := canonicaljson.Decode(body)
	if err != nil {
		return "", err
	}
	return Sign(payload, secret)
}

func compute(payload any, secret string) ([]byte, error) {
	canonical, err := canonicaljson.Marshal(payload)
	if err != nil {
		return nil, err
	}
	mac := hmac.New(sha512.New, []byte(secret))
	_, _ = mac.Write(canonical)
	return mac.Sum(nil), nil
}
