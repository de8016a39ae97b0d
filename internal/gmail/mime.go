package gmail

import (
	"encoding/base64"
	"strings"

	gmailv1 "google.golang.org/api/gmail/v1"
)

// assembleText builds the searchable text of a message: the snippet, the
// decoded top-level body and every decoded text/plain or text/html part.
// Parts that fail to decode contribute nothing.
func assembleText(msg *gmailv1.Message) string {
	if msg == nil {
		return ""
	}
	chunks := []string{msg.Snippet}
	if p := msg.Payload; p != nil {
		if p.Body != nil {
			chunks = append(chunks, decodeBase64URL(p.Body.Data))
		}
		for _, sub := range p.Parts {
			chunks = collectTextParts(sub, chunks)
		}
	}

	var b strings.Builder
	for _, c := range chunks {
		if c == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(c)
	}
	return b.String()
}

// collectTextParts walks a MIME part tree depth-first, in declaration order.
func collectTextParts(part *gmailv1.MessagePart, acc []string) []string {
	if part == nil {
		return acc
	}
	if isTextPart(part) && !isAttachment(part) && part.Body != nil && part.Body.Data != "" {
		acc = append(acc, decodeBase64URL(part.Body.Data))
	}
	for _, sub := range part.Parts {
		acc = collectTextParts(sub, acc)
	}
	return acc
}

func isTextPart(part *gmailv1.MessagePart) bool {
	switch strings.ToLower(part.MimeType) {
	case "text/plain", "text/html":
		return true
	}
	return false
}

func isAttachment(part *gmailv1.MessagePart) bool {
	if part.Filename != "" {
		return true
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, "Content-Disposition") {
			return strings.Contains(strings.ToLower(h.Value), "attachment")
		}
	}
	return false
}

func headerValue(part *gmailv1.MessagePart, name string) string {
	if part == nil {
		return ""
	}
	for _, h := range part.Headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

func decodeBase64URL(data string) string {
	if data == "" {
		return ""
	}
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail uses unpadded base64url
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return ""
		}
	}
	return string(b)
}
