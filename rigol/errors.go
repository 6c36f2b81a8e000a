package rigol

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// ErrClosed is returned by every operation on a controller after Close
var ErrClosed = errors.New("rigol: controller is closed")

// ErrorKind classifies a ValidationError
type ErrorKind int

const (
	// OutOfRange is a value outside the documented limits
	OutOfRange ErrorKind = iota

	// WrongWaveform is a sub-parameter of a waveform the channel is not producing
	WrongWaveform

	// Inconsistent is a value that conflicts with another part of the channel state
	Inconsistent

	// InvalidChannel is a channel other than 1 or 2
	InvalidChannel

	// Malformed is a request that cannot be interpreted at all
	Malformed
)

func (k ErrorKind) String() string {
	switch k {
	case OutOfRange:
		return "out of range"
	case WrongWaveform:
		return "wrong waveform"
	case Inconsistent:
		return "inconsistent"
	case InvalidChannel:
		return "invalid channel"
	default:
		return "malformed"
	}
}

// ValidationError is a request refused before anything was sent to the instrument
type ValidationError struct {
	Channel Channel
	Param   string
	Kind    ErrorKind
	Reason  string
}

func (e *ValidationError) Error() string {
	if e.Channel.Valid() {
		return fmt.Sprintf("rigol: %s %s: %s: %s", e.Channel, e.Param, e.Kind, e.Reason)
	}
	return fmt.Sprintf("rigol: %s: %s: %s", e.Param, e.Kind, e.Reason)
}

// HTTPStatus maps validation failures to 400 Bad Request
func (e *ValidationError) HTTPStatus() int {
	return http.StatusBadRequest
}

func invalid(ch Channel, param string, kind ErrorKind, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Channel: ch, Param: param, Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is, or wraps, a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// ProtocolGrammarError means the encoder was asked for a command it has no
// grammar for.  It indicates a bug in this package, never bad user input.
type ProtocolGrammarError struct {
	Op     Op
	Reason string
}

func (e *ProtocolGrammarError) Error() string {
	return fmt.Sprintf("rigol: no grammar for %s: %s", e.Op, e.Reason)
}

// Adjustment reports a value the instrument would adjust rather than reject.
// Applied is what the channel now holds; Adjusted is false when the request
// was taken as is.
type Adjustment struct {
	Param     string  `json:"param"`
	Requested float64 `json:"requested"`
	Applied   float64 `json:"applied"`
	Adjusted  bool    `json:"adjusted"`
}

func (a Adjustment) String() string {
	if !a.Adjusted {
		return fmt.Sprintf("%s %s accepted", a.Param, formatFloat(a.Applied))
	}
	return fmt.Sprintf("%s %s adjusted to %s", a.Param, formatFloat(a.Requested), formatFloat(a.Applied))
}
