package model

import "time"

// OutcomeTTL is how long a persisted outcome stays worth showing.
const OutcomeTTL = 60 * time.Second

// TabID identifies a tab in the host. It is opaque to everything but the host.
type TabID int

// NoTab is used when a request has no originating tab (CLI one-shot mode).
const NoTab TabID = 0

// RetrievalRequest is created by the popup on user action and consumed once.
type RetrievalRequest struct {
	ID           string
	Domain       string
	WantAutoFill bool
	RequestedAt  time.Time
	OriginTab    TabID
}

// MessageSummary is a search hit, in Gmail's recency order.
type MessageSummary struct {
	ID      string
	Snippet string
}

// MessageBody is the searchable text assembled from one message.
type MessageBody struct {
	ID   string
	From string // normalized sender address, informational only
	Text string
}

// RetrievalOutcome is the single result of a RetrievalRequest.
type RetrievalOutcome struct {
	Success     bool      `json:"success"`
	Code        string    `json:"code,omitempty"`
	Domain      string    `json:"domain"`
	Message     string    `json:"message"`
	RequestID   string    `json:"request_id,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// IsStale reports whether the outcome is too old to display.
func (o RetrievalOutcome) IsStale(now time.Time) bool {
	return now.Sub(o.CompletedAt) > OutcomeTTL
}

// BadgeState is the short indicator shown on the toolbar icon.
type BadgeState struct {
	Text  string `json:"text"`
	Color string `json:"color"`
	Title string `json:"title"`
}

// Action tags used on the short-lived request/response path and on bridge channels.
type Action string

const (
	ActionFetchRequest    Action = "fetch-request"
	ActionInjectionBridge Action = "bridge-injection-request"
	ActionFillCommand     Action = "fill-command"
	ActionFillResult      Action = "fill-result"
)

// Message is a short-lived request sent from the popup to the coordinator.
type Message struct {
	Action   Action `json:"action"`
	Domain   string `json:"domain,omitempty"`
	AutoFill bool   `json:"autoFill,omitempty"`
	Tab      TabID  `json:"tabId,omitempty"`
}

// Response acknowledges a Message. It never carries the retrieval result.
type Response struct {
	OK        bool   `json:"ok"`
	RequestID string `json:"requestId,omitempty"`
	Error     string `json:"error,omitempty"`
}

// Envelope is the wire format on a bridge channel.
type Envelope struct {
	Action Action `json:"action"`
	Code   string `json:"code,omitempty"`
	OK     bool   `json:"ok,omitempty"`
	Error  string `json:"error,omitempty"`
}
