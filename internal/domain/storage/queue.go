package storage

import (
	"fmt"
	"sync"
)

type opKind int

const (
	opRead opKind = iota
	opWrite
)

func (k opKind) String() string {
	if k == opWrite {
		return "write"
	}
	return "read"
}

// Result is the outcome of one queued operation.
type Result struct {
	Value any
	Err   error
}

type entry struct {
	kind    opKind
	payload any
	done    chan Result
}

type executor func(kind opKind, payload any) (any, error)

// queue serializes operations on a single resource. Entries run strictly in
// insertion order and only the head entry touches the file. At most one drain
// goroutine exists per queue; draining is true exactly while entries is
// non-empty.
type queue struct {
	mu       sync.Mutex
	entries  []*entry
	draining bool

	exec    executor
	onDepth func(depth int)
}

func newQueue(exec executor, onDepth func(int)) *queue {
	if onDepth == nil {
		onDepth = func(int) {}
	}
	return &queue{exec: exec, onDepth: onDepth}
}

// enqueue appends an operation and returns the channel its result will be
// delivered on. The channel is buffered so delivery never blocks the drain
// goroutine, even when the caller stopped waiting.
func (q *queue) enqueue(kind opKind, payload any) <-chan Result {
	e := &entry{kind: kind, payload: payload, done: make(chan Result, 1)}

	q.mu.Lock()
	q.entries = append(q.entries, e)
	depth := len(q.entries)
	start := !q.draining
	q.draining = true
	q.mu.Unlock()

	q.onDepth(depth)
	if start {
		go q.drain()
	}
	return e.done
}

func (q *queue) drain() {
	q.mu.Lock()
	head := q.entries[0]
	q.mu.Unlock()

	for {
		value, err := q.run(head)
		head.done <- Result{Value: value, Err: err}

		q.mu.Lock()
		q.entries[0] = nil
		q.entries = q.entries[1:]
		depth := len(q.entries)
		if depth == 0 {
			q.entries = nil
			q.draining = false
			q.mu.Unlock()
			q.onDepth(0)
			return
		}
		head = q.entries[0]
		q.mu.Unlock()
		q.onDepth(depth)
	}
}

// run executes one entry. A panicking executor fails only that entry.
func (q *queue) run(e *entry) (value any, err error) {
	defer func() {
		if r := recover(); r != nil {
			value, err = nil, fmt.Errorf("storage %s panicked: %v", e.kind, r)
		}
	}()
	return q.exec(e.kind, e.payload)
}

func (q *queue) depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}
