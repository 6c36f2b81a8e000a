package comm

import (
	"io"
	"sync"
	"time"
)

// CreationFunc is a function which returns a new "connection" to something
// a closure should be used to encapsulate the variables and functions needed
type CreationFunc func() (io.ReadWriteCloser, error)

// Pool is a communication pool which holds one or more connections to a device
// that will be closed if they are not in use, and re-opened as needed.
// it is concurrent safe.  Pools must be created with NewPool.
type Pool struct {
	leases  chan struct{}           // one token per connection given out, cap == maximum size
	idle    chan io.ReadWriteCloser // connections waiting to be reused
	timeout time.Duration           // time after the last return to free all connections
	timer   *time.Timer             // fires reclaim once the pool has been idle for timeout
	maker   CreationFunc

	closed bool
	mu     sync.Mutex
}

// NewPool creates a pool of at most maxSize connections, made with maker,
// that are closed after timeout has elapsed with none of them in use.
func NewPool(maxSize int, timeout time.Duration, maker CreationFunc) *Pool {
	if maxSize < 1 {
		maxSize = 1
	}
	p := &Pool{
		leases:  make(chan struct{}, maxSize),
		idle:    make(chan io.ReadWriteCloser, maxSize),
		timeout: timeout,
		maker:   maker,
	}
	p.timer = time.AfterFunc(timeout, p.reclaim)
	p.timer.Stop() // stop the timer since there is nothing to close initially
	return p
}

// Get retrieves a communicator from the pool, blocking until one is
// available if all are in use.  It is guaranteed that there is no contestion
// for the ReadWriter.  The consumer should not attempt to cast it to its
// concrete type and use it outside this interface.
//
// When done with the communicator, return it with Put(), or discard it with
// Destroy() if it has become no good (e.g., all calls error).
//
// If the error from Get is not nil, you must not return it
// to the pool, or you will cause a panic.
func (p *Pool) Get() (io.ReadWriter, error) {
	p.timer.Stop()
	p.leases <- struct{}{}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		<-p.leases
		return nil, ErrPoolClosed
	}
	select {
	case c := <-p.idle:
		return c, nil
	default:
	}
	c, err := p.maker()
	if err != nil {
		<-p.leases
		return nil, err
	}
	return c, nil
}

// Put restores a communicator to the pool.  It may be reused, or will be
// automatically freed after all connections are returned and the timout
// has elapsed.  Junk communicators (ones that always error) should be
// Destroy()'d and not returned with Put.
func (p *Pool) Put(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		rwc.Close()
	} else {
		p.idle <- rwc
	}
	<-p.leases
	if len(p.leases) == 0 && !p.closed {
		p.timer.Reset(p.timeout)
	}
}

// Destroy immediately frees a communicator from the pool.  This should be used
// instead of Put if the communicator has gone bad.
func (p *Pool) Destroy(rw io.ReadWriter) {
	rwc := rw.(io.ReadWriteCloser)
	rwc.Close()
	<-p.leases
}

// ReturnWithError returns rw with Put when err is nil, and Destroys it
// otherwise, since a connection that produced an error is in an unknown state.
func (p *Pool) ReturnWithError(rw io.ReadWriter, err error) {
	if err != nil {
		p.Destroy(rw)
		return
	}
	p.Put(rw)
}

// Size returns the number of connections in the pool, or given out from it
func (p *Pool) Size() int {
	return len(p.idle) + len(p.leases)
}

// Active returns the number of connections owned by the pool that are currently
// given out
func (p *Pool) Active() int {
	return len(p.leases)
}

// Close frees every idle connection and stops the pool from handing out new
// ones.  Connections still on lease are closed when they are returned.
// Closing an already closed pool is a no-op.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.timer.Stop()
	return p.drain()
}

// reclaim closes every idle connection if none are on lease
func (p *Pool) reclaim() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.leases) == 0 {
		p.drain()
	}
}

// drain must be called with mu held
func (p *Pool) drain() error {
	var first error
	for {
		select {
		case c := <-p.idle:
			if err := c.Close(); err != nil && first == nil {
				first = err
			}
		default:
			return first
		}
	}
}
