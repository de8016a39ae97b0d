package fillform

import (
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Scoring weights.
const (
	WeightOneTimeCode = 100
	WeightNumericMode = 50
	WeightCodeLength  = 30
	WeightSingleChar  = 20
	WeightAttrKeyword = 10
	WeightFormKeyword = 5
)

const (
	minCodeMaxLength    = 4
	maxCodeMaxLength    = 8
	noMaxLength         = -1
	singleCharMaxLength = 1
)

// Keywords that hint an input takes a one-time code.
var Keywords = []string{
	"otp", "code", "verification", "verify", "token", "pin",
	"2fa", "mfa", "one-time", "passcode", "security",
}

// excludedWords mark inputs for credentials or contact details.
var excludedWords = []string{
	"email", "e-mail", "password", "passwd", "username", "user-name", "user_name",
	"login", "phone", "mobile", "tel-national",
}

var excludedTypes = map[string]bool{
	"email":    true,
	"password": true,
	"hidden":   true,
}

// Attributes is everything the scorer looks at for one input.
type Attributes struct {
	Autocomplete string
	InputMode    string
	Type         string
	Name         string
	ID           string
	Class        string
	Placeholder  string
	AriaLabel    string
	MaxLength    int // noMaxLength when absent or unparsable
	FormText     string
}

func attributesOf(s *goquery.Selection) Attributes {
	a := Attributes{
		Autocomplete: strings.ToLower(strings.TrimSpace(s.AttrOr("autocomplete", ""))),
		InputMode:    strings.ToLower(strings.TrimSpace(s.AttrOr("inputmode", ""))),
		Type:         inputType(s),
		Name:         s.AttrOr("name", ""),
		ID:           s.AttrOr("id", ""),
		Class:        s.AttrOr("class", ""),
		Placeholder:  s.AttrOr("placeholder", ""),
		AriaLabel:    s.AttrOr("aria-label", ""),
		MaxLength:    noMaxLength,
	}
	if v, ok := s.Attr("maxlength"); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil && n >= 0 {
			a.MaxLength = n
		}
	}
	if form := s.Closest("form"); form.Length() > 0 {
		a.FormText = form.Text()
	}
	return a
}

func inputType(s *goquery.Selection) string {
	t := strings.ToLower(strings.TrimSpace(s.AttrOr("type", "")))
	if t == "" {
		return "text"
	}
	return t
}

func (a Attributes) identity() string {
	return strings.ToLower(strings.Join([]string{a.Name, a.ID, a.Class, a.Placeholder, a.AriaLabel}, " "))
}

// Excluded reports whether the input looks like an email, password,
// username or phone field.
func (a Attributes) Excluded() bool {
	if excludedTypes[a.Type] {
		return true
	}
	ident := strings.ToLower(strings.Join([]string{a.Name, a.ID, a.Class, a.Placeholder}, " "))
	for _, w := range excludedWords {
		if strings.Contains(ident, w) {
			return true
		}
	}
	return false
}

// Score rates how likely an input is to take a one-time code.
func Score(a Attributes) int {
	score := 0
	if a.Autocomplete == "one-time-code" {
		score += WeightOneTimeCode
	}
	if a.InputMode == "numeric" {
		score += WeightNumericMode
	}
	switch {
	case a.MaxLength >= minCodeMaxLength && a.MaxLength <= maxCodeMaxLength:
		score += WeightCodeLength
	case a.MaxLength == singleCharMaxLength:
		score += WeightSingleChar
	}
	score += WeightAttrKeyword * countKeywords(a.identity())
	score += WeightFormKeyword * countKeywords(strings.ToLower(a.FormText))
	return score
}

func countKeywords(text string) int {
	if text == "" {
		return 0
	}
	n := 0
	for _, k := range Keywords {
		if strings.Contains(text, k) {
			n++
		}
	}
	return n
}
