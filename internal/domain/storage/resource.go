package storage

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Resource is a handle to one named storage file. All operations go through
// the resource's queue; the cached value is updated only by completed
// operations. The cache holds encoded bytes owned by the resource, so values
// handed to or returned from callers never alias it.
type Resource struct {
	name   string
	path   string
	format Format

	fs     fileSystem
	writer *Writer
	queue  *queue

	mu     sync.RWMutex
	cached []byte
	warm   bool

	logger   *zap.Logger
	observer StorageObserver
}

func newResource(name, path string, format Format, initial []byte, fsys fileSystem, logger *zap.Logger, observer StorageObserver) *Resource {
	r := &Resource{
		name:     name,
		path:     path,
		format:   format,
		fs:       fsys,
		writer:   newWriter(fsys),
		cached:   initial,
		logger:   logger.With(zap.String("storage", name)),
		observer: observer,
	}
	r.queue = newQueue(r.execute, func(depth int) {
		observer.SetStorageQueueDepth(name, depth)
	})
	return r
}

// Name returns the resource name.
func (r *Resource) Name() string { return r.name }

// Path returns the absolute path of the backing file.
func (r *Resource) Path() string { return r.path }

// Format returns how the backing file is encoded.
func (r *Resource) Format() Format { return r.format }

// Cached returns a copy of the last known value. warm is false until a read
// or write has completed; before that the value is the provisional initial
// state.
func (r *Resource) Cached() (value any, warm bool) {
	r.mu.RLock()
	data, warm := r.cached, r.warm
	r.mu.RUnlock()

	// cached bytes were produced by encode or already decoded once
	value, _ = decode(r.format, data)
	return value, warm
}

// Pending returns the number of queued operations, including the running one.
func (r *Resource) Pending() int {
	return r.queue.depth()
}

// ReadAsync enqueues a read and returns the channel its result arrives on.
func (r *Resource) ReadAsync() <-chan Result {
	return r.queue.enqueue(opRead, nil)
}

// WriteAsync enqueues a write of value and returns the channel its result
// arrives on.
func (r *Resource) WriteAsync(value any) <-chan Result {
	return r.queue.enqueue(opWrite, value)
}

// Read loads the current content of the file. ctx bounds only the wait: the
// read still runs in order if the caller gives up.
func (r *Resource) Read(ctx context.Context) (any, error) {
	return await(ctx, r.ReadAsync())
}

// Write persists value and, once it is on disk, returns it as persisted: a
// fresh decode of the written bytes, shaped exactly as a later Read returns
// it. ctx bounds only the wait: the write still runs in order if the caller
// gives up.
func (r *Resource) Write(ctx context.Context, value any) (any, error) {
	return await(ctx, r.WriteAsync(value))
}

func await(ctx context.Context, ch <-chan Result) (any, error) {
	select {
	case res := <-ch:
		return res.Value, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (r *Resource) execute(kind opKind, payload any) (any, error) {
	start := time.Now()

	var (
		value any
		err   error
	)
	if kind == opWrite {
		value, err = r.write(payload)
	} else {
		value, err = r.read()
	}

	status := "ok"
	if err != nil {
		status = "error"
		r.logger.Warn("Storage operation failed",
			zap.String("op", kind.String()),
			zap.String("path", r.path),
			zap.Error(err))
	}
	r.observer.ObserveStorageOp(kind.String(), status, time.Since(start))
	return value, err
}

func (r *Resource) read() (any, error) {
	data, err := r.fs.ReadFile(r.path)
	if err != nil {
		return nil, ioError("read", r.path, err)
	}
	value, err := decode(r.format, data)
	if err != nil {
		return nil, err
	}
	r.store(data)
	return value, nil
}

func (r *Resource) write(value any) (any, error) {
	data, err := encode(r.format, value, false)
	if err != nil {
		return nil, err
	}
	if err := r.writer.WriteFile(r.path, data); err != nil {
		return nil, err
	}
	r.store(data)
	return decode(r.format, data)
}

// store takes ownership of data.
func (r *Resource) store(data []byte) {
	r.mu.Lock()
	r.cached = data
	r.warm = true
	r.mu.Unlock()
}
