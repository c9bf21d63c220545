package db

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialect(t *testing.T) {
	cases := []struct {
		name    string
		cfg     Config
		wantErr bool
		driver  string
	}{
		{name: "postgres", cfg: Config{Type: "postgres", Host: "localhost", Port: "5432", Name: "storefront"}, driver: "postgres"},
		{name: "sqlite case insensitive", cfg: Config{Type: " SQLite "}, driver: "sqlite"},
		{name: "mysql rejected", cfg: Config{Type: "mysql"}, wantErr: true},
		{name: "empty rejected", cfg: Config{}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dialector, err := Dialect(tc.cfg)
			if tc.wantErr {
				require.ErrorIs(t, err, ErrUnsupportedDialect)
				assert.Nil(t, dialector)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.driver, dialector.Name())
		})
	}
}
