// Package flight coordinates the asynchronous calls the questionnaire engine
// makes to its generation collaborator.
//
// At most one request is current at a time across all keys. Starting a request
// cancels whatever was outstanding, and a request for a key that is already
// held by the current request is rejected as a duplicate.
package flight

import (
	"context"
	"errors"
	"sync"
)

// Key names a logical operation
type Key string

const (
	KeyGenerateInitial   Key = "generate-initial"
	KeyGenerateNext      Key = "generate-next"
	KeyGenerateEmergency Key = "generate-emergency"
	KeyCheckEmergency    Key = "check-emergency-needed"
)

var (
	// ErrCancelled means the request was superseded or torn down. Callers drop
	// it silently.
	ErrCancelled = errors.New("request cancelled")

	// ErrDuplicateRequest means a request for the same key is already current
	// and its result is still coming.
	ErrDuplicateRequest = errors.New("duplicate request")

	ErrClosed = errors.New("coordinator closed")
)

// Coordinator is safe for concurrent use
type Coordinator struct {
	mu       sync.Mutex
	inFlight map[Key]uint64
	current  *Request
	seq      uint64
	closed   bool
}

// Request is one registered operation. Its context is cancelled when a newer
// request supersedes it or the coordinator closes.
type Request struct {
	c      *Coordinator
	id     uint64
	key    Key
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// New creates a coordinator
func New() *Coordinator {
	return &Coordinator{inFlight: make(map[Key]uint64)}
}

// Begin registers a request for key. The outstanding request, of any key, is
// cancelled and its key released. Callers must call Finish exactly once.
func (c *Coordinator) Begin(ctx context.Context, key Key) (*Request, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}
	if cur := c.current; cur != nil && cur.key == key && cur.ctx.Err() == nil {
		return nil, ErrDuplicateRequest
	}
	c.cancelLocked()

	c.seq++
	reqCtx, cancel := context.WithCancel(ctx)
	r := &Request{c: c, id: c.seq, key: key, ctx: reqCtx, cancel: cancel}
	c.current = r
	c.inFlight[key] = r.id
	return r, nil
}

// Do runs op as a single-flight request for key
func (c *Coordinator) Do(ctx context.Context, key Key, op func(ctx context.Context) error) error {
	r, err := c.Begin(ctx, key)
	if err != nil {
		return err
	}
	return r.Finish(op(r.Context()))
}

// Cancel cancels the outstanding request, if any
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
}

// InFlight reports whether key is held by a live request
func (c *Coordinator) InFlight(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.inFlight[key]
	return ok
}

// Busy reports whether any request is outstanding
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current != nil
}

// Close cancels the outstanding request and rejects new ones. Results that
// arrive afterwards resolve as ErrCancelled.
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancelLocked()
	c.inFlight = make(map[Key]uint64)
	c.closed = true
}

func (c *Coordinator) cancelLocked() {
	cur := c.current
	if cur == nil {
		return
	}
	cur.cancel()
	if c.inFlight[cur.key] == cur.id {
		delete(c.inFlight, cur.key)
	}
	c.current = nil
}

// Context is cancelled when the request is superseded
func (r *Request) Context() context.Context {
	return r.ctx
}

// Key returns the operation name
func (r *Request) Key() Key {
	return r.key
}

// Finish releases the request and converts the operation's result. A request
// whose context was cancelled resolves as ErrCancelled whatever err is.
func (r *Request) Finish(err error) error {
	cancelled := r.ctx.Err() != nil

	r.once.Do(func() {
		c := r.c
		c.mu.Lock()
		if c.inFlight[r.key] == r.id {
			delete(c.inFlight, r.key)
		}
		if c.current == r {
			c.current = nil
		}
		c.mu.Unlock()
		r.cancel()
	})

	if cancelled {
		return ErrCancelled
	}
	return err
}
