package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsContactData(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/payments/initialize"),
		attribute.String("customer.email", "ama@example.com"),
		attribute.String("customer.phone", "233241234567"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("http.route"), attrs[0].Key)
}

func TestSafeErrorKeepsRootCause(t *testing.T) {
	root := errors.New("gateway_unavailable")
	wrapped := fmt.Errorf("initialize SFP-01H: %w", root)

	assert.Nil(t, SafeError(nil))
	assert.EqualError(t, SafeError(wrapped), "gateway_unavailable")
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 1.0, clampRatio(3))
	assert.Equal(t, 0.25, clampRatio(0.25))
}
