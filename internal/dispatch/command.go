package dispatch

import (
	"context"
	"fmt"

	"github.com/hyprpal/playpal/internal/state"
)

// Command is an instruction understood by the player agent.
type Command string

const (
	CommandStop       Command = "stop"
	CommandResume     Command = "resume"
	CommandToggle     Command = "toggle"
	CommandMute       Command = "mute"
	CommandUnmute     Command = "unmute"
	CommandToggleMute Command = "toggle_mute"
)

// Commands lists every command in a stable order.
var Commands = []Command{CommandStop, CommandResume, CommandToggle, CommandMute, CommandUnmute, CommandToggleMute}

// ParseCommand validates a command name.
func ParseCommand(s string) (Command, error) {
	for _, c := range Commands {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q", s)
}

// Message is the wire payload delivered to a tab's player agent.
type Message struct {
	Action Command `json:"action"`
}

// Messenger delivers messages to the player agent running in a tab.
type Messenger interface {
	SendMessage(ctx context.Context, id state.TabID, msg Message) error
}

// Policy decides whether commands may be sent to a tab.
type Policy interface {
	IsEnabledFor(tab *state.Tab) bool
}

type traceKey struct{}

// Trace identifies the signal that caused a dispatch.
type Trace struct {
	ID     string `json:"id"`
	Signal string `json:"signal"`
}

// WithTrace attaches signal correlation data to ctx.
func WithTrace(ctx context.Context, trace Trace) context.Context {
	return context.WithValue(ctx, traceKey{}, trace)
}

// TraceFrom returns the correlation data attached by WithTrace.
func TraceFrom(ctx context.Context) (Trace, bool) {
	trace, ok := ctx.Value(traceKey{}).(Trace)
	return trace, ok
}
