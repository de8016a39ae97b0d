package delivery

import (
	"context"
	stderrors "errors"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/util"

	"go.uber.org/zap"
)

// HandleMessage answers a short-lived request from the popup. The response
// only acknowledges; results arrive through the outcome record.
func (c *Coordinator) HandleMessage(ctx context.Context, msg model.Message) model.Response {
	switch msg.Action {
	case model.ActionFetchRequest:
		domain := util.NormalizeDomain(msg.Domain)
		if domain == "" {
			return model.Response{Error: "no domain for the active tab"}
		}
		ack := c.HandleRequest(model.RetrievalRequest{
			Domain:       domain,
			WantAutoFill: msg.AutoFill,
			OriginTab:    msg.Tab,
		})
		return model.Response{OK: ack.Accepted, RequestID: ack.RequestID}

	case model.ActionInjectionBridge:
		c.mu.Lock()
		inj := c.injector
		c.mu.Unlock()
		if inj == nil {
			return model.Response{Error: "script injection unavailable"}
		}
		if err := inj.EnsureBridge(ctx, msg.Tab); err != nil {
			c.log.Info("bridge injection failed", zap.Int("tab", int(msg.Tab)), zap.Error(err))
			return model.Response{Error: messageOf(err)}
		}
		return model.Response{OK: true}
	}
	return model.Response{Error: "unknown action " + string(msg.Action)}
}

func messageOf(err error) string {
	var e *apperrors.Error
	if stderrors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
