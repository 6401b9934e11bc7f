package sigenergy

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/simonvetter/modbus"
)

// Session is one Modbus TCP connection to a (host, port) endpoint,
// multiplexing every slave id reachable there. Implementations serialize
// wire operations internally; the protocol cannot pipeline requests to one
// endpoint.
type Session interface {
	Endpoint() string
	Read(slaveID uint8, table Table, address uint16, words uint16) ([]uint16, error)
	Write(slaveID uint8, address uint16, words []uint16) error
	// ReadTimeout is the bound on a single wire operation.
	ReadTimeout() time.Duration
	Close() error
}

type SessionInstrument struct {
	RecordTime func(op string, d time.Duration)
}

const (
	initialBackoff = 250 * time.Millisecond
	maxBackoff     = 30 * time.Second
)

type TCPSession struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	endpoint   string
	timeout    time.Duration
	instrument []SessionInstrument

	open      bool
	backoff   time.Duration
	nextRetry time.Time
}

func NewTCPSession(host string, port uint16, timeout time.Duration, instrument ...SessionInstrument) (*TCPSession, error) {
	endpoint := fmt.Sprintf("%s:%d", host, port)
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     fmt.Sprintf("tcp://%s", endpoint),
		Timeout: timeout,
	})
	if err != nil {
		return nil, err
	}
	return &TCPSession{
		client:     client,
		endpoint:   endpoint,
		timeout:    timeout,
		instrument: instrument,
		backoff:    initialBackoff,
	}, nil
}

func (s *TCPSession) Endpoint() string {
	return s.endpoint
}

func (s *TCPSession) ReadTimeout() time.Duration {
	return s.timeout
}

func (s *TCPSession) Read(slaveID uint8, table Table, address uint16, words uint16) ([]uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recordTimer("Read")()

	if err := s.ensureOpen(); err != nil {
		return nil, err
	}
	if err := s.client.SetUnitId(slaveID); err != nil {
		return nil, endpointErr(s.endpoint, ErrMalformed)
	}
	regType := modbus.INPUT_REGISTER
	if table == HoldingTable {
		regType = modbus.HOLDING_REGISTER
	}
	values, err := s.client.ReadRegisters(address, words, regType)
	if err != nil {
		return nil, s.fail(err)
	}
	return values, nil
}

func (s *TCPSession) Write(slaveID uint8, address uint16, words []uint16) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.recordTimer("Write")()

	if err := s.ensureOpen(); err != nil {
		return err
	}
	if err := s.client.SetUnitId(slaveID); err != nil {
		return endpointErr(s.endpoint, ErrMalformed)
	}
	var err error
	if len(words) == 1 {
		err = s.client.WriteRegister(address, words[0])
	} else {
		err = s.client.WriteRegisters(address, words)
	}
	if err != nil {
		return s.fail(err)
	}
	return nil
}

func (s *TCPSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.open {
		return nil
	}
	s.open = false
	return s.client.Close()
}

// ensureOpen connects on first use and gates reconnect attempts behind the
// exponential backoff window while degraded.
func (s *TCPSession) ensureOpen() error {
	if s.open {
		return nil
	}
	if now := time.Now(); now.Before(s.nextRetry) {
		return endpointErr(s.endpoint, ErrUnreachable)
	}
	if err := s.client.Open(); err != nil {
		s.degrade()
		return endpointErr(s.endpoint, ErrUnreachable)
	}
	s.open = true
	s.backoff = initialBackoff
	return nil
}

func (s *TCPSession) degrade() {
	s.nextRetry = time.Now().Add(s.backoff)
	s.backoff *= 2
	if s.backoff > maxBackoff {
		s.backoff = maxBackoff
	}
}

// fail maps a modbus client error onto the session failure taxonomy.
// Connectivity failures drop the connection so the next call goes through
// the reconnect path.
func (s *TCPSession) fail(err error) error {
	mapped := mapClientError(err)
	if errors.Is(mapped, ErrUnreachable) || errors.Is(mapped, ErrTimeout) {
		s.client.Close()
		s.open = false
		s.degrade()
	}
	return endpointErr(s.endpoint, mapped)
}

func mapClientError(err error) error {
	switch {
	case errors.Is(err, modbus.ErrIllegalDataAddress),
		errors.Is(err, modbus.ErrIllegalFunction):
		return ErrIllegalAddress
	case errors.Is(err, modbus.ErrIllegalDataValue):
		return ErrRejectedValue
	case errors.Is(err, modbus.ErrRequestTimedOut):
		return ErrTimeout
	case errors.Is(err, modbus.ErrProtocolError),
		errors.Is(err, modbus.ErrShortFrame),
		errors.Is(err, modbus.ErrBadUnitId):
		return ErrMalformed
	default:
		return ErrUnreachable
	}
}

func (s *TCPSession) recordTimer(op string) func() {
	if len(s.instrument) == 0 {
		return func() {}
	}
	start := time.Now()
	return func() {
		d := time.Since(start)
		for i := range s.instrument {
			s.instrument[i].RecordTime(op, d)
		}
	}
}
