package bridge

import (
	"context"

	"github.com/jefe-johann/grab-otp/internal/fillform"
	"github.com/jefe-johann/grab-otp/internal/logger"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"go.uber.org/zap"
)

// Connector is where a freshly started agent registers its channel.
type Connector interface {
	Connect(tab model.TabID, conn *Conn)
}

// NewAgent returns the page agent. On start it opens a channel and hands the
// coordinator's end to c, then answers fill-commands until the tab goes away
// or the coordinator closes the channel.
func NewAgent(c Connector, log *zap.Logger) tabs.Agent {
	log = logger.OrNop(log)
	return func(ctx context.Context, tab *tabs.Tab) {
		mine, theirs := Pipe()
		defer mine.Close()
		c.Connect(tab.ID, theirs)
		serve(ctx, tab, mine, log.With(zap.Int("tab", int(tab.ID))))
	}
}

func serve(ctx context.Context, tab *tabs.Tab, conn *Conn, log *zap.Logger) {
	for {
		env, err := conn.Recv(ctx)
		if err != nil {
			log.Debug("agent stopped", zap.Error(err))
			return
		}
		if env.Action != model.ActionFillCommand {
			log.Debug("agent ignored message", zap.String("action", string(env.Action)))
			continue
		}

		var filled bool
		tab.WithPage(func(p *fillform.Page) {
			filled = fillform.FillOTP(p, env.Code)
		})
		reply := model.Envelope{Action: model.ActionFillResult, OK: filled}
		if !filled {
			reply.Error = "no OTP input found"
		}
		if err := conn.Send(ctx, reply); err != nil {
			log.Debug("fill-result not sent", zap.Error(err))
			return
		}
	}
}
