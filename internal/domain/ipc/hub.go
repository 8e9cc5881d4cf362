package ipc

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/GriffinCanCode/hostkit/internal/shared/id"
	"go.uber.org/zap"
)

// Target receives broadcast messages. Send must be safe for concurrent use.
type Target interface {
	ID() string
	Send(msg Message) error
}

// Observer receives relay metrics.
type Observer interface {
	ObserveIPCInvoke(channel, status string, duration time.Duration)
}

type reply struct {
	err    string
	result any
}

// Hub relays invocations to every registered target and resolves each one
// with the first reply that arrives. Later replies are dropped.
type Hub struct {
	logger   *zap.Logger
	observer Observer

	mu      sync.RWMutex
	targets map[string]Target
	pending map[id.RequestID]*pendingCall
}

type pendingCall struct {
	channel string
	done    chan reply
}

// NewHub creates an empty hub
func NewHub(logger *zap.Logger, observer Observer) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger:   logger,
		observer: observer,
		targets:  make(map[string]Target),
		pending:  make(map[id.RequestID]*pendingCall),
	}
}

// Register adds a target; a target with the same ID is replaced.
func (h *Hub) Register(t Target) {
	h.mu.Lock()
	h.targets[t.ID()] = t
	h.mu.Unlock()
	h.logger.Debug("IPC target registered", zap.String("target", t.ID()))
}

// Unregister removes a target.
func (h *Hub) Unregister(targetID string) {
	h.mu.Lock()
	delete(h.targets, targetID)
	h.mu.Unlock()
	h.logger.Debug("IPC target unregistered", zap.String("target", targetID))
}

// Targets returns the registered target IDs in sorted order.
func (h *Hub) Targets() []string {
	h.mu.RLock()
	ids := make([]string, 0, len(h.targets))
	for tid := range h.targets {
		ids = append(ids, tid)
	}
	h.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

// Invoke sends channel and args to every target and waits for the first
// reply. The wait ends early when ctx is done.
func (h *Hub) Invoke(ctx context.Context, channel string, args ...any) (result any, err error) {
	if channel == "" {
		return nil, ErrChannelRequired
	}
	start := time.Now()
	defer func() {
		if h.observer != nil {
			status := "ok"
			if err != nil {
				status = "error"
			}
			h.observer.ObserveIPCInvoke(channel, status, time.Since(start))
		}
	}()

	rid := id.NewRequestID()
	call := &pendingCall{channel: channel, done: make(chan reply, 1)}

	h.mu.Lock()
	h.pending[rid] = call
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		delete(h.pending, rid)
		h.mu.Unlock()
	}()

	sent := h.send(Message{Type: TypeInvoke, RequestID: rid, Channel: channel, Args: args})
	if sent == 0 {
		return nil, fmt.Errorf("invoke %s: %w", channel, ErrNoTargets)
	}

	select {
	case r := <-call.done:
		if r.err != "" {
			return nil, &RemoteError{Channel: channel, Message: r.err}
		}
		return r.result, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Reply resolves a pending invocation. It reports false when the request is
// unknown or was already answered.
func (h *Hub) Reply(requestID id.RequestID, errMsg string, result any) bool {
	h.mu.Lock()
	call, ok := h.pending[requestID]
	if ok {
		delete(h.pending, requestID)
	}
	h.mu.Unlock()

	if !ok {
		h.logger.Debug("Dropping reply for unknown request", zap.String("request_id", requestID.String()))
		return false
	}
	call.done <- reply{err: errMsg, result: result}
	return true
}

// Broadcast sends an event to every target without waiting for replies.
func (h *Hub) Broadcast(channel string, args ...any) int {
	if channel == "" {
		return 0
	}
	return h.send(Message{Type: TypeEvent, Channel: channel, Args: args})
}

// send delivers msg to every target and returns how many accepted it.
// Individual failures are logged.
func (h *Hub) send(msg Message) int {
	h.mu.RLock()
	targets := make([]Target, 0, len(h.targets))
	for _, t := range h.targets {
		targets = append(targets, t)
	}
	h.mu.RUnlock()

	sent := 0
	for _, t := range targets {
		if err := t.Send(msg); err != nil {
			h.logger.Warn("Failed to send to IPC target",
				zap.String("target", t.ID()),
				zap.String("channel", msg.Channel),
				zap.Error(err))
			continue
		}
		sent++
	}
	return sent
}
