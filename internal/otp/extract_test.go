package otp

import "testing"

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
		ok   bool
	}{
		{"six digit phrase", "Your verification code: 482913", "482913", true},
		{"bare four", "Use 4821 to sign in", "4821", true},
		{"bare eight", "Token 12345678 expires soon", "12345678", true},
		{"five digits only via phrase", "pin: 12345", "12345", true},
		{"seven digits via otp phrase", "OTP 1234567 is valid", "1234567", true},
		{"no digits", "Welcome to example.com", "", false},
		{"too short", "Call 123 or 99", "", false},
		{"too long run", "Order 1234567890123 shipped", "", false},
		{"five digit run without phrase", "Zip 12345", "", false},
		{"empty", "", "", false},
		{"digits glued to letters", "ref A123456B", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := Extract(tc.in)
			if ok != tc.ok || got != tc.want {
				t.Fatalf("Extract(%q) = %q, %v; want %q, %v", tc.in, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestExtract_DeclarationOrderWins(t *testing.T) {
	// The phrase-anchored 4-digit value comes first in reading order, but the
	// bare 6-digit pattern is declared first.
	text := "Your code: 4821. Reference number 739104."
	got, ok := Extract(text)
	if !ok || got != "739104" {
		t.Fatalf("Extract = %q, %v; want 739104", got, ok)
	}
}

func TestExtract_FirstMatchWithinPattern(t *testing.T) {
	got, _ := Extract("codes 111111 and 222222")
	if got != "111111" {
		t.Fatalf("got %q; want 111111", got)
	}
}

func TestExtract_ResultAlwaysValid(t *testing.T) {
	inputs := []string{
		"verification code: 00001234",
		"pin:9876",
		"mixed 12 345 6789 text",
		"otp: 123456789",
		"<td style=\"color:#333\">Code 5521</td>",
	}
	for _, in := range inputs {
		if got, ok := Extract(in); ok && !Valid(got) {
			t.Errorf("Extract(%q) returned invalid code %q", in, got)
		}
	}
}

func TestValid(t *testing.T) {
	tests := []struct {
		in   string
		want bool
	}{
		{"1234", true},
		{"12345678", true},
		{"123", false},
		{"123456789", false},
		{"12a4", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := Valid(tc.in); got != tc.want {
			t.Errorf("Valid(%q) = %v; want %v", tc.in, got, tc.want)
		}
	}
}
