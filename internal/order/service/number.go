package service

import (
	"crypto/rand"
	"time"

	"github.com/smallbiznis/storefront/internal/order/domain"
)

const crockford = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

type randomNumbers struct{}

// NewNumberGenerator returns the SF-YYMMDD-XXXXX generator.
func NewNumberGenerator() domain.NumberGenerator {
	return randomNumbers{}
}

func (randomNumbers) Generate(now time.Time) string {
	var buf [5]byte
	_, _ = rand.Read(buf[:])
	suffix := make([]byte, len(buf))
	for i, b := range buf {
		suffix[i] = crockford[b&31]
	}
	return "SF-" + now.UTC().Format("060102") + "-" + string(suffix)
}
