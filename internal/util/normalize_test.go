package util

import "testing"

func TestNormalizeSender_Basic(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`Name <User@Example.COM>`, "user@example.com"},
		{`"Name" <user+news@Example.com>`, "user@example.com"},
		{`user+tag@EXAMPLE.com`, "user@example.com"},
		{`user.name+tag@EXAMPLE.com`, "user.name@example.com"}, // dots preserved
		{`bad address`, ""},
		{`"A" <not-an-email> , "B" <c@D.com>`, "c@d.com"}, // list fallback picks first valid
		{``, ""},
	}
	for _, tc := range tests {
		if got := NormalizeSender(tc.in); got != tc.want {
			t.Errorf("NormalizeSender(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}

func TestSenderDomain(t *testing.T) {
	if got := SenderDomain(`Example <noreply@Example.com>`); got != "example.com" {
		t.Errorf("SenderDomain = %q; want example.com", got)
	}
	if got := SenderDomain(`nobody`); got != "" {
		t.Errorf("SenderDomain = %q; want empty", got)
	}
}

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://www.Example.com/login?next=/", "example.com"},
		{"http://accounts.example.com:8443/verify", "accounts.example.com"},
		{"example.com", "example.com"},
		{"Example.COM/path", "example.com"},
		{"https://user@example.com/", "example.com"},
		{"  ", ""},
		{"", ""},
		{"chrome://extensions", "extensions"},
	}
	for _, tc := range tests {
		if got := NormalizeDomain(tc.in); got != tc.want {
			t.Errorf("NormalizeDomain(%q) = %q; want %q", tc.in, got, tc.want)
		}
	}
}
