package browser

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hyprpal/playpal/internal/dispatch"
	"github.com/hyprpal/playpal/internal/state"
)

func sampleHost() *MemoryHost {
	return NewMemoryHost(
		state.Tab{ID: "a", WindowID: 1, URL: "https://a.test/", Active: true},
		state.Tab{ID: "b", WindowID: 1, URL: "https://b.test/"},
		state.Tab{ID: "c", WindowID: 2, URL: "https://c.test/", Active: true},
	)
}

func TestMemoryHostQueries(t *testing.T) {
	ctx := context.Background()
	h := sampleHost()

	tab, err := h.Tab(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, state.WindowID(1), tab.WindowID)

	_, err = h.Tab(ctx, "missing")
	assert.True(t, errors.Is(err, state.ErrTabNotFound))

	inWindow, err := h.TabsInWindow(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, inWindow, 2)

	active, err := h.ActiveTabs(ctx)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, state.TabID("a"), active[0].ID)
	assert.Equal(t, state.TabID("c"), active[1].ID)

	current, err := h.CurrentWindowTabs(ctx)
	require.NoError(t, err)
	assert.Len(t, current, 2, "first active tab's window starts focused")

	h.Focus(2)
	current, err = h.CurrentWindowTabs(ctx)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, state.TabID("c"), current[0].ID)

	h.Focus(state.WindowNone)
	current, err = h.CurrentWindowTabs(ctx)
	require.NoError(t, err)
	assert.Empty(t, current)
}

func TestMemoryHostActivateMovesActiveFlag(t *testing.T) {
	ctx := context.Background()
	h := sampleHost()
	require.NoError(t, h.Activate("b"))

	a, _ := h.Tab(ctx, "a")
	b, _ := h.Tab(ctx, "b")
	c, _ := h.Tab(ctx, "c")
	assert.False(t, a.Active)
	assert.True(t, b.Active)
	assert.True(t, c.Active, "other windows keep their active tab")

	assert.Error(t, h.Activate("missing"))
}

func TestMemoryHostRecordsDeliveriesAndInjections(t *testing.T) {
	ctx := context.Background()
	h := sampleHost()

	require.NoError(t, h.SendMessage(ctx, "a", dispatch.Message{Action: dispatch.CommandStop}))
	h.Remove("b")
	err := h.SendMessage(ctx, "b", dispatch.Message{Action: dispatch.CommandResume})
	assert.True(t, errors.Is(err, state.ErrTabNotFound))

	require.NoError(t, h.Inject(ctx, state.Tab{ID: "c"}))
	h.FailInjection(errors.New("boom"))
	assert.Error(t, h.Inject(ctx, state.Tab{ID: "a"}))

	assert.Equal(t, []Delivery{{Tab: "a", Command: dispatch.CommandStop}}, h.Deliveries())
	assert.Equal(t, []state.TabID{"c"}, h.Injections())

	h.Reset()
	assert.Empty(t, h.Deliveries())
	assert.Empty(t, h.Injections())
}

func TestMemoryHostUpsertReplacesAndDeactivatesSiblings(t *testing.T) {
	ctx := context.Background()
	h := sampleHost()
	h.Upsert(state.Tab{ID: "d", WindowID: 1, URL: "https://d.test/", Active: true})

	active, err := h.ActiveTabs(ctx)
	require.NoError(t, err)
	ids := []state.TabID{}
	for _, tab := range active {
		ids = append(ids, tab.ID)
	}
	assert.ElementsMatch(t, []state.TabID{"c", "d"}, ids)

	h.Upsert(state.Tab{ID: "d", WindowID: 1, URL: "https://d.test/next", Active: true})
	d, err := h.Tab(ctx, "d")
	require.NoError(t, err)
	assert.Equal(t, "https://d.test/next", d.URL)
}
