package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestMaskContact(t *testing.T) {
	cases := map[string]string{
		"":                 "",
		"jane@example.com": "j***@example.com",
		"233241234567":     "***567",
		"12":               "***",
		"  ama@shop.gh ":   "a***@shop.gh",
	}
	for in, want := range cases {
		assert.Equal(t, want, MaskContact(in), "input %q", in)
	}
}

func TestRedactingCoreMasksContactFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	log := zap.New(NewRedactingCore(core)).With(zap.String("customer_phone", "0241234567"))

	log.Info("order placed",
		zap.String("email", "jane@example.com"),
		zap.String("order_number", "SF-260301-ABCDE"),
		zap.Int("phone", 42),
	)

	entries := logs.All()
	if assert.Len(t, entries, 1) {
		fields := entries[0].ContextMap()
		assert.Equal(t, "***567", fields["customer_phone"])
		assert.Equal(t, "j***@example.com", fields["email"])
		assert.Equal(t, "SF-260301-ABCDE", fields["order_number"])
		assert.EqualValues(t, 42, fields["phone"])
	}
}

func TestRedactingCoreRespectsLevel(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	log := zap.New(NewRedactingCore(core))

	log.Info("dropped", zap.String("email", "jane@example.com"))
	log.Warn("kept")

	assert.Equal(t, 1, logs.Len())
}
