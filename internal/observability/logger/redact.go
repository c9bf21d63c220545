package logger

import (
	"strings"

	"go.uber.org/zap/zapcore"
)

var contactKeys = map[string]struct{}{
	"email":          {},
	"phone":          {},
	"whatsapp":       {},
	"customer_email": {},
	"customer_phone": {},
}

type redactingCore struct {
	zapcore.Core
}

// NewRedactingCore masks customer contact fields on every entry written
// through core.
func NewRedactingCore(core zapcore.Core) zapcore.Core {
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
		if _, ok := contactKeys[f.Key]; !ok || f.Type != zapcore.StringType {
			continue
		}
		if out == nil {
			out = make([]zapcore.Field, len(fields))
			copy(out, fields)
		}
		out[i].String = MaskContact(f.String)
	}
	if out == nil {
		return fields
	}
	return out
}

// MaskContact keeps enough of an email or phone number to correlate support
// tickets: the first letter and domain of an email, the last three digits of
// anything else.
func MaskContact(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if at := strings.LastIndex(value, "@"); at > 0 {
		return value[:1] + "***" + value[at:]
	}
	if len(value) <= 3 {
		return "***"
	}
	return "***" + value[len(value)-3:]
}
