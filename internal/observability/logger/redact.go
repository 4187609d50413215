package logger

import (
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const redactedValue = "[redacted]"

// Field keys whose values never reach the log output.
var redactedKeys = map[string]struct{}{
	"secret":            {},
	"ipn_secret":        {},
	"signature":         {},
	"x-nowpayments-sig": {},
	"expected":          {},
	"password":          {},
	"authorization":     {},
}

type redactingCore struct {
	zapcore.Core
}

// Redact wraps core so credential-bearing fields are masked.
func Redact(core zapcore.Core) zapcore.Core {
	return redactingCore{Core: core}
}

func (c redactingCore) With(fields []zapcore.Field) zapcore.Core {
	return redactingCore{Core: c.Core.With(redactFields(fields))}
}

func (c redactingCore) Check(ent zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if c.Enabled(ent.Level) {
		return ce.AddCore(ent, c)
	}
	return ce
}

func (c redactingCore) Write(ent zapcore.Entry, fields []zapcore.Field) error {
	return c.Core.Write(ent, redactFields(fields))
}

func redactFields(fields []zapcore.Field) []zapcore.Field {
	var out []zapcore.Field
	for i, f := range fields {
		if _, ok := redactedKeys[strings.ToLower(f.Key)]; !ok {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i] = zap.String(f.Key, redactedValue)
	}
	if out == nil {
		return fields
	}
	return out
}
