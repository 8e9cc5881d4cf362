package ipc

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// fakeTarget records messages and can answer invocations.
type fakeTarget struct {
	id      string
	sendErr error
	onSend  func(Message)

	mu   sync.Mutex
	msgs []Message
}

func (f *fakeTarget) ID() string { return f.id }

func (f *fakeTarget) Send(msg Message) error {
	if f.sendErr != nil {
		return f.sendErr
	}
	f.mu.Lock()
	f.msgs = append(f.msgs, msg)
	f.mu.Unlock()
	if f.onSend != nil {
		f.onSend(msg)
	}
	return nil
}

func (f *fakeTarget) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.msgs...)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []string
}

func (o *recordingObserver) ObserveIPCInvoke(channel, status string, _ time.Duration) {
	o.mu.Lock()
	o.statuses = append(o.statuses, channel+":"+status)
	o.mu.Unlock()
}

func TestInvokeFirstReplyWins(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)

	fast := &fakeTarget{id: "fast"}
	fast.onSend = func(msg Message) {
		go hub.Reply(msg.RequestID, "", "from fast")
	}
	slow := &fakeTarget{id: "slow"}
	slow.onSend = func(msg Message) {
		go func() {
			time.Sleep(20 * time.Millisecond)
			assert.False(t, hub.Reply(msg.RequestID, "", "from slow"))
		}()
	}
	hub.Register(fast)
	hub.Register(slow)

	result, err := hub.Invoke(context.Background(), "get-title", "main", 1)
	require.NoError(t, err)
	assert.Equal(t, "from fast", result)

	msgs := fast.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, TypeInvoke, msgs[0].Type)
	assert.Equal(t, "get-title", msgs[0].Channel)
	assert.Equal(t, []any{"main", 1}, msgs[0].Args)
	assert.Equal(t, msgs[0].RequestID, slow.Messages()[0].RequestID)

	time.Sleep(40 * time.Millisecond)
}

func TestInvokeRemoteError(t *testing.T) {
	obs := &recordingObserver{}
	hub := NewHub(nil, obs)
	target := &fakeTarget{id: "w"}
	target.onSend = func(msg Message) {
		go hub.Reply(msg.RequestID, "permission denied", nil)
	}
	hub.Register(target)

	_, err := hub.Invoke(context.Background(), "delete")

	var remote *RemoteError
	require.True(t, errors.As(err, &remote))
	assert.Equal(t, "delete", remote.Channel)
	assert.Equal(t, "permission denied", remote.Message)
	assert.Equal(t, []string{"delete:error"}, obs.statuses)
}

func TestInvokeNoTargets(t *testing.T) {
	hub := NewHub(nil, nil)

	_, err := hub.Invoke(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrNoTargets)

	hub.Register(&fakeTarget{id: "dead", sendErr: errors.New("closed")})
	_, err = hub.Invoke(context.Background(), "ping")
	assert.ErrorIs(t, err, ErrNoTargets)

	_, err = hub.Invoke(context.Background(), "")
	assert.ErrorIs(t, err, ErrChannelRequired)
}

func TestInvokeSendFailureIsNotFatal(t *testing.T) {
	hub := NewHub(zaptest.NewLogger(t), nil)
	hub.Register(&fakeTarget{id: "dead", sendErr: errors.New("closed")})
	live := &fakeTarget{id: "live"}
	live.onSend = func(msg Message) {
		go hub.Reply(msg.RequestID, "", float64(42))
	}
	hub.Register(live)

	result, err := hub.Invoke(context.Background(), "answer")
	require.NoError(t, err)
	assert.Equal(t, float64(42), result)
}

func TestInvokeContextDone(t *testing.T) {
	hub := NewHub(nil, nil)
	silent := &fakeTarget{id: "silent"}
	hub.Register(silent)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := hub.Invoke(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The request is forgotten once the caller gives up.
	rid := silent.Messages()[0].RequestID
	assert.False(t, hub.Reply(rid, "", "late"))
}

func TestBroadcast(t *testing.T) {
	hub := NewHub(nil, nil)
	a := &fakeTarget{id: "a"}
	b := &fakeTarget{id: "b"}
	hub.Register(a)
	hub.Register(b)
	hub.Register(&fakeTarget{id: "c", sendErr: errors.New("gone")})

	assert.Equal(t, 2, hub.Broadcast("update-available", "1.2.0"))
	assert.Equal(t, 0, hub.Broadcast(""))

	for _, target := range []*fakeTarget{a, b} {
		msgs := target.Messages()
		require.Len(t, msgs, 1)
		assert.Equal(t, Message{Type: TypeEvent, Channel: "update-available", Args: []any{"1.2.0"}}, msgs[0])
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(nil, nil)
	hub.Register(&fakeTarget{id: "b"})
	hub.Register(&fakeTarget{id: "a"})
	hub.Register(&fakeTarget{id: "a"})

	assert.Equal(t, []string{"a", "b"}, hub.Targets())

	hub.Unregister("a")
	assert.Equal(t, []string{"b"}, hub.Targets())
}

func TestRemoteErrorMessage(t *testing.T) {
	err := &RemoteError{Channel: "save", Message: "disk full"}
	assert.Equal(t, "ipc save: disk full", err.Error())
}
