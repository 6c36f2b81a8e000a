/*Package comm provides connection plumbing for lab hardware that speaks a
line-oriented ASCII protocol.

Most usages of this package will boil down to:
	1.  build a CreationFunc for the physical link (TCP, serial, or USBTMC
		from package usbtmc)
	2.  hand it to NewPool, so connections are reused while the device is busy
		and freed after it has been idle for a while
	3.  wrap each leased connection with NewTimeout and NewTerminator before
		writing commands and reading replies

A minimal example for a LAN instrument listening on the Rigol socket port

	pool := comm.NewPool(1, 10*time.Second, comm.BackoffTCPMaker("192.168.1.20:5555", 3*time.Second))
	conn, err := pool.Get()
	if err != nil {
		return err
	}
	defer func() { pool.ReturnWithError(conn, err) }()
	rw := comm.NewTerminator(conn, '\n', '\n')
	_, err = io.WriteString(rw, "*IDN?")
*/
package comm

import (
	"bufio"
	"io"
	"net"
	"strings"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
	"github.com/tarm/serial"
)

var (
	// ErrNotConnected is generated when a read or write is attempted on a nil connection
	ErrNotConnected = errors.New("conn is nil, not connected to remote")

	// ErrTerminatorNotFound is generated when the termination byte is not found in a response
	ErrTerminatorNotFound = errors.New("termination byte not found")

	// ErrPoolClosed is returned by Get after the pool has been closed
	ErrPoolClosed = errors.New("connection pool is closed")
)

// TransportError is the error type produced when the link to a device fails.
// Op names the step that failed (dial, write, read, ...).
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return "transport " + e.Op + ": " + e.Err.Error()
}

// Unwrap returns the underlying error
func (e *TransportError) Unwrap() error {
	return e.Err
}

// Wrap turns err into a *TransportError for op.  nil stays nil, and errors
// that already are a TransportError are returned unchanged.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	var te *TransportError
	if errors.As(err, &te) {
		return err
	}
	return &TransportError{Op: op, Err: err}
}

// Terminators holds the transmission and receipt termination bytes
type Terminators struct {
	Tx byte
	Rx byte
}

// terminator wraps a ReadWriter so that writes are terminated with tx and
// reads return one rx-terminated message at a time
type terminator struct {
	rw      io.ReadWriter
	br      *bufio.Reader
	tx, rx  byte
	pending []byte
}

// NewTerminator returns a ReadWriter that appends tx to every Write that does
// not already end with it, and whose Read returns exactly one rx-terminated
// message (terminator included).  A message longer than the caller's buffer
// is delivered over several Reads.
func NewTerminator(rw io.ReadWriter, rx, tx byte) io.ReadWriter {
	return &terminator{rw: rw, br: bufio.NewReader(rw), tx: tx, rx: rx}
}

func (t *terminator) Write(b []byte) (int, error) {
	if len(b) == 0 || b[len(b)-1] != t.tx {
		buf := make([]byte, len(b), len(b)+1)
		copy(buf, b)
		buf = append(buf, t.tx)
		n, err := t.rw.Write(buf)
		if n > len(b) {
			n = len(b)
		}
		return n, err
	}
	return t.rw.Write(b)
}

func (t *terminator) Read(b []byte) (int, error) {
	if len(t.pending) == 0 {
		msg, err := t.br.ReadBytes(t.rx)
		if err != nil {
			if err == io.EOF && len(msg) > 0 {
				return copy(b, msg), ErrTerminatorNotFound
			}
			return 0, err
		}
		t.pending = msg
	}
	n := copy(b, t.pending)
	t.pending = t.pending[n:]
	return n, nil
}

type deadliner interface {
	SetReadDeadline(time.Time) error
	SetWriteDeadline(time.Time) error
}

type timeout struct {
	rw io.ReadWriter
	dl deadliner
	d  time.Duration
}

// NewTimeout returns a ReadWriter that refreshes the read or write deadline
// of rw before every call.  Links without deadlines (serial ports, USB) are
// returned unchanged, they carry their own timeouts.
func NewTimeout(rw io.ReadWriter, d time.Duration) (io.ReadWriter, error) {
	if d <= 0 {
		return nil, errors.Errorf("timeout must be positive, got %v", d)
	}
	dl, ok := rw.(deadliner)
	if !ok {
		return rw, nil
	}
	return &timeout{rw: rw, dl: dl, d: d}, nil
}

func (t *timeout) Write(b []byte) (int, error) {
	if err := t.dl.SetWriteDeadline(time.Now().Add(t.d)); err != nil {
		return 0, err
	}
	return t.rw.Write(b)
}

func (t *timeout) Read(b []byte) (int, error) {
	if err := t.dl.SetReadDeadline(time.Now().Add(t.d)); err != nil {
		return 0, err
	}
	return t.rw.Read(b)
}

// TCPSetup opens a new TCP connection and sets a timeout on connect, read, and write
func TCPSetup(addr string, timeout time.Duration) (net.Conn, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, err
	}
	deadline := time.Now().Add(timeout)
	conn.SetReadDeadline(deadline)
	conn.SetWriteDeadline(deadline)
	return conn, nil
}

// BackoffTCPMaker returns a CreationFunc which dials addr with an exponential
// backoff.  Instruments tend to refuse sockets for a moment after the last one
// was closed, so only a hard "connection refused" stops the retries early.
func BackoffTCPMaker(addr string, timeout time.Duration) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		var conn net.Conn
		op := func() error {
			c, err := TCPSetup(addr, timeout)
			if err != nil {
				if strings.Contains(strings.ToLower(err.Error()), "refused") {
					return backoff.Permanent(err)
				}
				return err
			}
			conn = c
			return nil
		}
		err := backoff.Retry(op, &backoff.ExponentialBackOff{
			InitialInterval:     25 * time.Millisecond,
			RandomizationFactor: 0.,
			Multiplier:          2.,
			MaxInterval:         1 * time.Second,
			MaxElapsedTime:      3 * time.Second,
			Clock:               backoff.SystemClock})
		if err != nil {
			return nil, &TransportError{Op: "dial", Err: errors.Wrapf(err, "connecting to %s", addr)}
		}
		return conn, nil
	}
}

// SerialMaker returns a CreationFunc which opens the serial port described by conf
func SerialMaker(conf *serial.Config) CreationFunc {
	return func() (io.ReadWriteCloser, error) {
		port, err := serial.OpenPort(conf)
		if err != nil {
			return nil, &TransportError{Op: "open", Err: errors.Wrapf(err, "opening %s", conf.Name)}
		}
		return port, nil
	}
}
