package ipc

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
)

// Message types
const (
	TypeInvoke = "invoke"
	TypeReply  = "reply"
	TypeEvent  = "event"
	TypePing   = "ping"
	TypePong   = "pong"
	TypeError  = "error"
)

// Message is the frame exchanged with targets.
type Message struct {
	Type      string       `json:"type"`
	RequestID id.RequestID `json:"requestId,omitempty"`
	Channel   string       `json:"channel,omitempty"`
	Args      []any        `json:"args,omitempty"`
	Error     string       `json:"error,omitempty"`
	Result    any          `json:"result,omitempty"`
}

var (
	// ErrNoTargets indicates an invocation with nobody to answer it.
	ErrNoTargets = errors.New("no ipc targets")
	// ErrChannelRequired indicates an invocation or event without a channel.
	ErrChannelRequired = errors.New("ipc channel is required")
)

// RemoteError is the error text a target replied with.
type RemoteError struct {
	Channel string
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("ipc %s: %s", e.Channel, e.Message)
}
