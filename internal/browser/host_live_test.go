package browser

import (
	"context"
	"io"
	"os"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyprpal/playpal/internal/config"
	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/state"
	"github.com/hyprpal/playpal/internal/util"
)

// TestLiveHost runs against a real browser exposed through
// PLAYPAL_LIVE_DEBUGGER_URL.
func TestLiveHost(t *testing.T) {
	url := os.Getenv("PLAYPAL_LIVE_DEBUGGER_URL")
	if url == "" {
		t.Skip("PLAYPAL_LIVE_DEBUGGER_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	h, err := Connect(ctx, config.BrowserConfig{DebuggerURL: url}, util.NewLoggerWithWriter(util.LevelError, io.Discard))
	require.NoError(t, err)
	defer h.Close()

	page, err := h.browser.Page(proto.TargetCreateTarget{URL: "about:blank"})
	require.NoError(t, err)
	defer page.Close()
	id := state.TabID(page.TargetID)

	tab, err := h.Tab(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, tab.ID)
	assert.NotEqual(t, state.WindowNone, tab.WindowID)

	inWindow, err := h.TabsInWindow(ctx, tab.WindowID)
	require.NoError(t, err)
	assert.NotEmpty(t, inWindow)

	require.NoError(t, h.SendMessage(ctx, id, dispatch.Message{Action: dispatch.CommandStop}))
	require.NoError(t, h.Inject(ctx, *tab), "injection without a script is a no-op")
}
