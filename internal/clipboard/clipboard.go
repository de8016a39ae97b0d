// Package clipboard writes codes to the system clipboard, falling back to an
// OSC 52 escape sequence on the terminal when no clipboard tool is installed.
package clipboard

import (
	"errors"
	"io"
	"os"
	"strings"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/logger"

	"github.com/atotto/clipboard"
	"github.com/aymanbagabas/go-osc52/v2"
	"go.uber.org/zap"
)

// Writer is the clipboard capability.
type Writer interface {
	WriteText(text string) error
}

type multiplexer int

const (
	muxNone multiplexer = iota
	muxTmux
	muxScreen
)

// System is the desktop clipboard.
type System struct {
	write       func(string) error
	unsupported bool
	term        io.Writer // OSC 52 target; nil disables the fallback
	mux         multiplexer
	log         *zap.Logger
}

// NewSystem returns a clipboard that falls back to OSC 52 on term.
func NewSystem(term io.Writer, log *zap.Logger) *System {
	return &System{
		write:       clipboard.WriteAll,
		unsupported: clipboard.Unsupported,
		term:        term,
		mux:         detectMultiplexer(),
		log:         logger.OrNop(log),
	}
}

func detectMultiplexer() multiplexer {
	switch {
	case os.Getenv("TMUX") != "":
		return muxTmux
	case strings.HasPrefix(os.Getenv("TERM"), "screen"):
		return muxScreen
	}
	return muxNone
}

// WriteText copies text. Failures are CLIPBOARD_ERRORs.
func (s *System) WriteText(text string) error {
	var primary error
	if s.unsupported {
		primary = errors.New("no clipboard utility available")
	} else if primary = s.write(text); primary == nil {
		return nil
	}
	if s.term == nil {
		return apperrors.NewClipboard(primary)
	}
	s.log.Debug("system clipboard unavailable, using OSC 52", zap.Error(primary))

	seq := osc52.New(text)
	switch s.mux {
	case muxTmux:
		seq = seq.Tmux()
	case muxScreen:
		seq = seq.Screen()
	}
	if _, err := seq.WriteTo(s.term); err != nil {
		return apperrors.NewClipboard(err)
	}
	return nil
}
