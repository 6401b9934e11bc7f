package sigenergy

import (
	"sync"
	"sync/atomic"
	"time"
)

// FakeSession is an in-memory Session for tests. Register words are stored
// per (slave, table, address); reading an address with no stored word yields
// ErrIllegalAddress, matching a device that does not implement the register.
type FakeSession struct {
	EndpointName string
	// Latency widens the in-flight window so overlap detection has teeth.
	Latency time.Duration

	mu       sync.Mutex
	words    map[fakeKey]uint16
	failWith error

	inFlight   atomic.Int32
	overlapped atomic.Bool
	ops        []FakeOp
}

type fakeKey struct {
	slave   uint8
	table   Table
	address uint16
}

type FakeOp struct {
	Op      string
	SlaveID uint8
	Address uint16
	Words   uint16
}

func NewFakeSession(endpoint string) *FakeSession {
	return &FakeSession{
		EndpointName: endpoint,
		words:        map[fakeKey]uint16{},
	}
}

// SetRegister stores raw words for a register so reads of it succeed.
func (f *FakeSession) SetRegister(slaveID uint8, spec RegisterSpec, words ...uint16) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, w := range words {
		f.words[fakeKey{slaveID, spec.Table, spec.Address + uint16(i)}] = w
	}
}

// LoadKind populates every readable catalog register of a kind with a
// plausible value, except the named ones.
func (f *FakeSession) LoadKind(slaveID uint8, kind DeviceKind, except ...string) {
	skip := map[string]bool{}
	for _, name := range except {
		skip[name] = true
	}
	for _, spec := range RegistersFor(kind) {
		if !spec.Readable() || skip[spec.Name] {
			continue
		}
		words := make([]uint16, spec.Words)
		if spec.Type == String {
			for i := range words {
				words[i] = 0x4142 // "AB"
			}
		} else if spec.Words > 0 {
			words[spec.Words-1] = 1
		}
		f.SetRegister(slaveID, spec, words...)
	}
}

// FailWith makes every subsequent operation fail with err. Pass nil to heal.
func (f *FakeSession) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// Ops returns the wire operation log.
func (f *FakeSession) Ops() []FakeOp {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]FakeOp, len(f.ops))
	copy(out, f.ops)
	return out
}

func (f *FakeSession) WriteCount() int {
	n := 0
	for _, op := range f.Ops() {
		if op.Op == "write" {
			n++
		}
	}
	return n
}

// Overlapped reports whether two wire operations were ever in flight at the
// same time. A correctly serialized caller never trips this.
func (f *FakeSession) Overlapped() bool {
	return f.overlapped.Load()
}

func (f *FakeSession) Endpoint() string {
	return f.EndpointName
}

func (f *FakeSession) ReadTimeout() time.Duration {
	if f.Latency > 0 {
		return f.Latency
	}
	return 100 * time.Millisecond
}

func (f *FakeSession) Read(slaveID uint8, table Table, address uint16, words uint16) ([]uint16, error) {
	defer f.enter()()
	f.mu.Lock()
	if f.failWith != nil {
		err := f.failWith
		f.ops = append(f.ops, FakeOp{"read", slaveID, address, words})
		f.mu.Unlock()
		return nil, endpointErr(f.EndpointName, err)
	}
	f.ops = append(f.ops, FakeOp{"read", slaveID, address, words})
	out := make([]uint16, words)
	for i := uint16(0); i < words; i++ {
		w, ok := f.words[fakeKey{slaveID, table, address + i}]
		if !ok {
			f.mu.Unlock()
			return nil, endpointErr(f.EndpointName, ErrIllegalAddress)
		}
		out[i] = w
	}
	f.mu.Unlock()
	return out, nil
}

func (f *FakeSession) Write(slaveID uint8, address uint16, words []uint16) error {
	defer f.enter()()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ops = append(f.ops, FakeOp{"write", slaveID, address, uint16(len(words))})
	if f.failWith != nil {
		return endpointErr(f.EndpointName, f.failWith)
	}
	for i, w := range words {
		f.words[fakeKey{slaveID, HoldingTable, address + uint16(i)}] = w
	}
	return nil
}

func (f *FakeSession) Close() error {
	return nil
}

func (f *FakeSession) enter() func() {
	if f.inFlight.Add(1) > 1 {
		f.overlapped.Store(true)
	}
	if f.Latency > 0 {
		time.Sleep(f.Latency)
	}
	return func() {
		f.inFlight.Add(-1)
	}
}
