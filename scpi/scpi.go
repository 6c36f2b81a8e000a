// Package scpi provides primitives for working with devices that
// have SCPI interfaces
package scpi

import (
	"bytes"
	"context"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/nasa-jpl/golaborate-awg/comm"
)

const (
	// DefaultTimeout is the I/O deadline applied to every exchange when Timeout is zero
	DefaultTimeout = 5 * time.Second

	tcpFrameSize = 1500

	errorQuery = ":SYSTem:ERRor?"
)

// InstrumentError is a non-zero entry of the instrument's error queue
type InstrumentError struct {
	Msg string
}

func (e *InstrumentError) Error() string {
	return "instrument error: " + e.Msg
}

// noError reports whether an error queue entry is the "no error" entry.
// Keysight answers +0,"No error", Rigol answers 0,"No error".
func noError(s string) bool {
	return strings.HasPrefix(s, "+0") || strings.HasPrefix(s, "0,")
}

// SCPI is a type for encapsulating SCPI communication
type SCPI struct {
	Pool *comm.Pool

	// Handshaking indicates if the communication shall use handshaking,
	// where an error query is sent with every message
	// to ensure the device accepted the input
	Handshaking bool

	// Timeout is the I/O deadline for each exchange, DefaultTimeout if zero
	Timeout time.Duration

	// Limiter, if not nil, paces commands.  Some instruments drop input
	// that arrives faster than the front panel can process it.
	Limiter *rate.Limiter
}

// New returns a SCPI session over pool
func New(pool *comm.Pool, handshaking bool) *SCPI {
	return &SCPI{Pool: pool, Handshaking: handshaking}
}

func (s *SCPI) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

// exchange writes the joined cmds on a pooled connection and, if read is true,
// reads a single reply line
func (s *SCPI) exchange(read bool, cmds ...string) (resp []byte, err error) {
	if s.Limiter != nil {
		if err = s.Limiter.Wait(context.Background()); err != nil {
			return nil, err
		}
	}
	conn, err := s.Pool.Get()
	if err != nil {
		return nil, comm.Wrap("connect", err)
	}
	defer func() { s.Pool.ReturnWithError(conn, err) }()
	var wrap io.ReadWriter
	wrap, err = comm.NewTimeout(conn, s.timeout())
	if err != nil {
		return nil, err
	}
	wrap = comm.NewTerminator(wrap, '\n', '\n')
	str := strings.Join(cmds, " ")
	if s.Handshaking {
		str = "*CLS;" + str + ";" + errorQuery
		read = true
	}
	if _, err = io.WriteString(wrap, str); err != nil {
		return nil, &comm.TransportError{Op: "write", Err: err}
	}
	if !read {
		return nil, nil
	}
	buf := make([]byte, tcpFrameSize)
	n, err := wrap.Read(buf)
	if err != nil {
		return nil, &comm.TransportError{Op: "read", Err: err}
	}
	return bytes.TrimRight(buf[:n], "\r\n"), nil
}

// Write sends a command to the device.  if s.Handshaking == true,
// it also requests an error response and checks that it is OK
// it is assumed this is used for set operations and not get.
func (s *SCPI) Write(cmds ...string) error {
	resp, err := s.exchange(false, cmds...)
	if err != nil {
		return err
	}
	if s.Handshaking {
		str := string(resp)
		if !noError(str) {
			return &InstrumentError{Msg: str}
		}
	}
	return nil
}

// WriteRead is write, but with a read call after.  It is assumed that "get"
// calls use this underlying mechanism
func (s *SCPI) WriteRead(cmds ...string) ([]byte, error) {
	resp, err := s.exchange(true, cmds...)
	if err != nil {
		return resp, err
	}
	if s.Handshaking {
		idx := bytes.LastIndexByte(resp, ';')
		if idx < 0 {
			return resp, errors.Errorf("handshake reply %q lacks an error queue entry", resp)
		}
		errS := string(resp[idx+1:])
		if !noError(errS) {
			return resp[:idx], &InstrumentError{Msg: errS}
		}
		return resp[:idx], nil
	}
	return resp, nil
}

// ReadString sends a command to the device, the reads the response
// and returns it as a decoded ASCII or UTF-8 string
func (s *SCPI) ReadString(cmds ...string) (string, error) {
	resp, err := s.WriteRead(cmds...)
	return string(resp), err
}

// ReadFloat sends a command to the device, then reads the
// response and parses it as a floating point value
func (s *SCPI) ReadFloat(cmds ...string) (float64, error) {
	resp, err := s.ReadString(cmds...)
	if err != nil {
		return 0, err
	}
	return strconv.ParseFloat(resp, 64)
}

// Raw sends a command to the device and returns a response if it was a query,
// else a blank string
func (s *SCPI) Raw(str string) (string, error) {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	if strings.Contains(str, "?") {
		return s.ReadString(str)
	}
	return "", s.Write(str)
}

// Send writes a single command, satisfying the transport needs of
// instrument drivers built on this package
func (s *SCPI) Send(cmd string) error {
	return s.Write(cmd)
}

// Query writes a single query and returns the raw reply, stripped only of
// its line terminator
func (s *SCPI) Query(cmd string) (string, error) {
	return s.ReadString(cmd)
}

// Close releases every pooled connection.  It is safe to call more than once.
func (s *SCPI) Close() error {
	return s.Pool.Close()
}

// PopError gets a single error from the queue on the device
func (s *SCPI) PopError() error {
	prev := s.Handshaking
	s.Handshaking = false
	defer func() { s.Handshaking = prev }()
	str, err := s.ReadString(errorQuery)
	if err != nil {
		return err
	}
	if noError(str) {
		return nil
	}
	return &InstrumentError{Msg: str}
}

// AllErrors returns all errors from the device as a list.  A transport
// failure ends the list and is included as its final element.
func (s *SCPI) AllErrors() []error {
	var errs []error
	for {
		err := s.PopError()
		if err == nil {
			break
		}
		errs = append(errs, err)
		var ie *InstrumentError
		if !errors.As(err, &ie) {
			break
		}
	}
	return errs
}

// AllErrorsString is equivalent to AllErrors, but joining by newline
// if there were no errors, the error return value is nil, otherwise
// it is the first error in the list and has no particular meaning
func (s *SCPI) AllErrorsString() (string, error) {
	errs := s.AllErrors()
	if len(errs) == 0 {
		return "", nil
	}
	strs := make([]string, len(errs))
	for i := 0; i < len(errs); i++ {
		strs[i] = errs[i].Error()
	}
	return strings.Join(strs, "\n"), errs[0]
}
