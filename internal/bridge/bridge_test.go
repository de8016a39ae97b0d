package bridge

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/fillform"
	"github.com/jefe-johann/grab-otp/internal/model"
	"github.com/jefe-johann/grab-otp/internal/tabs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	ctx := context.Background()
	agent, coord := Pipe()

	require.NoError(t, coord.Send(ctx, model.Envelope{Action: model.ActionFillCommand, Code: "482913"}))
	got, err := agent.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFillCommand, got.Action)
	assert.Equal(t, "482913", got.Code)

	require.NoError(t, agent.Send(ctx, model.Envelope{Action: model.ActionFillResult, OK: true}))
	got, err = coord.Recv(ctx)
	require.NoError(t, err)
	assert.True(t, got.OK)
}

func TestPipeCloseIsSharedAndIdempotent(t *testing.T) {
	ctx := context.Background()
	agent, coord := Pipe()
	require.NoError(t, agent.Send(ctx, model.Envelope{Action: model.ActionFillResult, OK: true}))

	agent.Close()
	agent.Close()
	assert.False(t, coord.Alive())
	assert.ErrorIs(t, coord.Send(ctx, model.Envelope{Action: model.ActionFillCommand}), ErrClosed)

	// Already queued messages still arrive.
	got, err := coord.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFillResult, got.Action)

	_, err = coord.Recv(ctx)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPipeRecvHonoursContext(t *testing.T) {
	_, coord := Pipe()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err := coord.Recv(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

// registry is a minimal Registry that keeps one channel per tab.
type registry struct {
	mu        sync.Mutex
	conns     map[model.TabID]*Conn
	connects  int
	connected chan *Conn
}

func newRegistry() *registry {
	return &registry{conns: make(map[model.TabID]*Conn), connected: make(chan *Conn, 4)}
}

func (r *registry) Connect(tab model.TabID, c *Conn) {
	r.mu.Lock()
	r.conns[tab] = c
	r.connects++
	r.mu.Unlock()
	r.connected <- c
}

func (r *registry) Live(tab model.TabID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.conns[tab]
	return ok && c.Alive()
}

func waitConnect(t *testing.T, r *registry) *Conn {
	t.Helper()
	select {
	case c := <-r.connected:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("agent never connected")
		return nil
	}
}

func TestEnsureBridgeFillsPage(t *testing.T) {
	host := tabs.NewHost(nil)
	t.Cleanup(host.CloseAll)
	id, err := host.Open("https://example.com/verify", strings.NewReader(
		`<form><label>Verification code</label><input id="otp" autocomplete="one-time-code"></form>`))
	require.NoError(t, err)

	reg := newRegistry()
	inj := NewInjector(host, reg, nil)
	require.NoError(t, inj.EnsureBridge(context.Background(), id))
	conn := waitConnect(t, reg)

	ctx := context.Background()
	require.NoError(t, conn.Send(ctx, model.Envelope{Action: model.ActionFillCommand, Code: "482913"}))
	res, err := conn.Recv(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.ActionFillResult, res.Action)
	assert.True(t, res.OK)

	tab, _ := host.Tab(id)
	tab.WithPage(func(p *fillform.Page) {
		assert.Equal(t, "482913", p.Doc.Find("#otp").AttrOr("value", ""))
	})

	// A second request while connected does not inject again.
	require.NoError(t, inj.EnsureBridge(context.Background(), id))
	assert.Equal(t, 1, reg.connects)
}

func TestAgentReportsNoInput(t *testing.T) {
	host := tabs.NewHost(nil)
	t.Cleanup(host.CloseAll)
	id, err := host.Open("https://example.com", strings.NewReader(`<p>nothing here</p>`))
	require.NoError(t, err)

	reg := newRegistry()
	require.NoError(t, NewInjector(host, reg, nil).EnsureBridge(context.Background(), id))
	conn := waitConnect(t, reg)

	ctx := context.Background()
	require.NoError(t, conn.Send(ctx, model.Envelope{Action: model.ActionFillCommand, Code: "4821"}))
	res, err := conn.Recv(ctx)
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.NotEmpty(t, res.Error)
}

func TestAgentChannelClosesWithTab(t *testing.T) {
	host := tabs.NewHost(nil)
	id, err := host.Open("https://example.com", strings.NewReader(`<input>`))
	require.NoError(t, err)

	reg := newRegistry()
	require.NoError(t, NewInjector(host, reg, nil).EnsureBridge(context.Background(), id))
	conn := waitConnect(t, reg)
	require.True(t, conn.Alive())

	host.Close(id)
	select {
	case <-conn.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("channel should close when the tab closes")
	}
	assert.False(t, reg.Live(id))
}

func TestEnsureBridgeRestrictedPage(t *testing.T) {
	host := tabs.NewHost(nil)
	id, err := host.Open("chrome://settings", strings.NewReader(""))
	require.NoError(t, err)

	reg := newRegistry()
	err = NewInjector(host, reg, nil).EnsureBridge(context.Background(), id)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInjection))
	assert.Zero(t, reg.connects)
}
