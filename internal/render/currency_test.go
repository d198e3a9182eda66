package render

import "testing"

func TestFormatCurrency(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{1500000.0, "1.500.000"},
		{0.0, "0"},
		{999, "999"},
		{1000, "1.000"},
		{1234567.89, "1.234.568"},
	}
	for _, c := range cases {
		if got := FormatCurrency(c.in); got != c.want {
			t.Errorf("FormatCurrency(%v) = %q, want %q", c.in, got, c.want)
		}
	}
}
