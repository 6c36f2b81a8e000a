package rigol

import (
	"strings"
	"sync"
)

// MockIDN is the identification string of MockTransport
const MockIDN = "Rigol Technologies,DG4162,MOCK000000001,00.01.14"

// MockTransport is an in-memory instrument.  It records every command it is
// sent and answers the few queries this package and the server make.
// Setting Err makes every subsequent Send and Query fail with it.
type MockTransport struct {
	sync.Mutex

	// Sent is every command accepted, in order
	Sent []string

	// IDN is the reply to *IDN?
	IDN string

	Err error

	closes int
}

// NewMockTransport returns a mock instrument identifying as a DG4162
func NewMockTransport() *MockTransport {
	return &MockTransport{IDN: MockIDN}
}

// Send records cmd
func (m *MockTransport) Send(cmd string) error {
	m.Lock()
	defer m.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Sent = append(m.Sent, cmd)
	return nil
}

// Query records cmd and returns the canned reply, if there is one
func (m *MockTransport) Query(cmd string) (string, error) {
	m.Lock()
	defer m.Unlock()
	if m.Err != nil {
		return "", m.Err
	}
	m.Sent = append(m.Sent, cmd)
	switch strings.ToUpper(cmd) {
	case "*IDN?":
		return m.IDN, nil
	case ":SYST:ERR?", ":SYSTEM:ERROR?":
		return `0,"No error"`, nil
	}
	return "", nil
}

// Close counts calls
func (m *MockTransport) Close() error {
	m.Lock()
	defer m.Unlock()
	m.closes++
	return nil
}

// Closes is the number of times Close was called
func (m *MockTransport) Closes() int {
	m.Lock()
	defer m.Unlock()
	return m.closes
}

// Last returns the most recent command, or "" if none was sent
func (m *MockTransport) Last() string {
	m.Lock()
	defer m.Unlock()
	if len(m.Sent) == 0 {
		return ""
	}
	return m.Sent[len(m.Sent)-1]
}

// Reset forgets the recorded commands
func (m *MockTransport) Reset() {
	m.Lock()
	defer m.Unlock()
	m.Sent = nil
}

// Raw satisfies the raw passthrough of the HTTP wrapper.  Queries, commands
// containing '?', are answered as Query; anything else is recorded.
func (m *MockTransport) Raw(cmd string) (string, error) {
	if strings.Contains(cmd, "?") {
		return m.Query(cmd)
	}
	return "", m.Send(cmd)
}
