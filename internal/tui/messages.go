package tui

import "github.com/jefe-johann/grab-otp/internal/model"

// Async message types for Bubble Tea commands.

type stateLoadedMsg struct {
	autoFill bool
	badge    *model.BadgeState
	outcome  *model.RetrievalOutcome
	err      error
}

type fetchSentMsg struct {
	resp model.Response
	note string // shown while waiting, e.g. why auto-fill is unavailable
}

type pollMsg struct{}

type outcomeMsg struct {
	outcome *model.RetrievalOutcome
	err     error
}

type prefSavedMsg struct {
	err error
}

type statusMsg string
