package tabs

import (
	"context"
	"strings"
	"testing"
	"time"

	apperrors "github.com/jefe-johann/grab-otp/internal/errors"
	"github.com/jefe-johann/grab-otp/internal/fillform"
	"github.com/jefe-johann/grab-otp/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRestricted(t *testing.T) {
	tests := []struct {
		url        string
		restricted bool
	}{
		{"https://example.com/login", false},
		{"http://localhost:8080/", false},
		{"chrome://settings", true},
		{"about:blank", true},
		{"file:///etc/hosts", true},
		{"edge://flags", true},
		{"view-source:https://example.com", true},
		{"https://chromewebstore.google.com/detail/x", true},
		{"https://chrome.google.com/webstore/detail/x", true},
		{"https://chrome.google.com/other", false},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.restricted, Restricted(tt.url) != "")
		})
	}
}

func TestOpenAndActiveTab(t *testing.T) {
	h := NewHost(nil)
	_, ok := h.ActiveTab()
	assert.False(t, ok)

	first, err := h.Open("https://www.example.com/a", strings.NewReader("<p>a</p>"))
	require.NoError(t, err)
	second, err := h.Open("https://other.org/b", strings.NewReader("<p>b</p>"))
	require.NoError(t, err)

	tab, ok := h.ActiveTab()
	require.True(t, ok)
	assert.Equal(t, second, tab.ID)
	assert.Equal(t, "other.org", tab.Domain())

	require.NoError(t, h.Activate(first))
	tab, _ = h.ActiveTab()
	assert.Equal(t, "example.com", tab.Domain())
	assert.Error(t, h.Activate(model.TabID(99)))
}

func TestInjectRunsAgentUntilClose(t *testing.T) {
	h := NewHost(nil)
	id, err := h.Open("https://example.com", strings.NewReader(`<input id="otp">`))
	require.NoError(t, err)

	started := make(chan model.TabID, 1)
	stopped := make(chan struct{})
	agent := func(ctx context.Context, tab *Tab) {
		tab.WithPage(func(p *fillform.Page) {
			assert.Equal(t, 1, p.Doc.Find("#otp").Length())
		})
		started <- tab.ID
		<-ctx.Done()
		close(stopped)
	}
	require.NoError(t, h.Inject(context.Background(), id, agent, true))

	select {
	case got := <-started:
		assert.Equal(t, id, got)
	case <-time.After(time.Second):
		t.Fatal("agent did not start")
	}

	h.Close(id)
	select {
	case <-stopped:
	default:
		t.Fatal("Close should wait for the agent to stop")
	}
	_, ok := h.Tab(id)
	assert.False(t, ok)
}

func TestInjectDenied(t *testing.T) {
	h := NewHost(nil)
	id, err := h.Open("chrome://extensions", strings.NewReader(""))
	require.NoError(t, err)

	ran := false
	err = h.Inject(context.Background(), id, func(context.Context, *Tab) { ran = true }, true)
	require.Error(t, err)
	assert.True(t, apperrors.Is(err, apperrors.ErrInjection))
	assert.False(t, ran)

	err = h.Inject(context.Background(), model.TabID(42), func(context.Context, *Tab) {}, false)
	assert.True(t, apperrors.Is(err, apperrors.ErrInjection))
}

func TestList(t *testing.T) {
	h := NewHost(nil)
	a, _ := h.Open("https://a.com", strings.NewReader(""))
	b, _ := h.Open("https://b.com", strings.NewReader(""))
	tabs := h.List()
	require.Len(t, tabs, 2)
	assert.Equal(t, a, tabs[0].ID)
	assert.Equal(t, b, tabs[1].ID)
}
