package domain

import "testing"

func TestNormalizePhone(t *testing.T) {
	cases := map[string]string{
		"+233 24 123 4567": "233241234567",
		"(024) 123-4567":   "0241234567",
		"024.123.4567 ":    "0241234567",
		"no digits":        "",
	}
	for in, want := range cases {
		if got := NormalizePhone(in); got != want {
			t.Fatalf("NormalizePhone(%q) = %q, want %q", in, got, want)
		}
	}
}
