// Package transfer defines the chunked-transfer contract between the capture
// pipeline and the radio transport that moves bytes to the phone. The
// pipeline produces complete payloads; slicing, acknowledgement and
// retransmission belong to the transport behind the Sender interface.
package transfer

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Kind discriminates transfer chunks.
type Kind int

const (
	// KindStart opens a transfer and carries the filename and total size.
	KindStart Kind = iota
	// KindData carries a slice of the payload.
	KindData
	// KindEnd signals completion.
	KindEnd
)

var kindNames = [...]string{"start", "data", "end"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Chunk is the boundary artifact handed to a transport.
type Chunk struct {
	Kind      Kind   `json:"kind"`
	Name      string `json:"name,omitempty"`
	TotalSize int    `json:"total_size,omitempty"`
	Payload   []byte `json:"payload,omitempty"`
}

// Sender is the downstream transport contract.
type Sender interface {
	SendStart(name string, totalSize int) error
	SendData(payload []byte) error
	SendEnd() error
}

// DefaultChunkSize is the Data slice size transports use unless configured
// otherwise: about 80ms of link budget at the assumed throughput.
const DefaultChunkSize = 4 << 10

// Send pushes one complete payload through a sender as a Start/Data/End
// sequence, slicing it into chunkSize pieces.
func Send(s Sender, name string, payload []byte, chunkSize int) error {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if err := s.SendStart(name, len(payload)); err != nil {
		return fmt.Errorf("send start: %w", err)
	}
	for off := 0; off < len(payload); off += chunkSize {
		end := off + chunkSize
		if end > len(payload) {
			end = len(payload)
		}
		if err := s.SendData(payload[off:end]); err != nil {
			return fmt.Errorf("send data at %d: %w", off, err)
		}
	}
	if err := s.SendEnd(); err != nil {
		return fmt.Errorf("send end: %w", err)
	}
	return nil
}

// DefaultThroughput is the assumed sustained link rate between the glasses
// and the phone, in bytes per second.
const DefaultThroughput = 50 * 1024

// Estimate converts a payload size into an expected delivery duration at the
// given link throughput. Telemetry only; never a control input.
func Estimate(sizeBytes, throughputBps int) time.Duration {
	if throughputBps <= 0 {
		throughputBps = DefaultThroughput
	}
	if sizeBytes <= 0 {
		return 0
	}
	return time.Duration(float64(sizeBytes) / float64(throughputBps) * float64(time.Second))
}

// ErrOutOfOrder is returned by MemorySender on a malformed chunk sequence.
var ErrOutOfOrder = errors.New("chunk out of order")

// MemorySender collects a chunk sequence in memory. It stands in for a real
// transport in tests and validates the Start/Data/End ordering.
type MemorySender struct {
	mu     sync.Mutex
	chunks []Chunk
	open   bool
}

// NewMemorySender creates an empty MemorySender.
func NewMemorySender() *MemorySender {
	return &MemorySender{}
}

func (m *MemorySender) SendStart(name string, totalSize int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.open {
		return ErrOutOfOrder
	}
	m.open = true
	m.chunks = append(m.chunks, Chunk{Kind: KindStart, Name: name, TotalSize: totalSize})
	return nil
}

func (m *MemorySender) SendData(payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrOutOfOrder
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	m.chunks = append(m.chunks, Chunk{Kind: KindData, Payload: buf})
	return nil
}

func (m *MemorySender) SendEnd() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return ErrOutOfOrder
	}
	m.open = false
	m.chunks = append(m.chunks, Chunk{Kind: KindEnd})
	return nil
}

// Chunks returns the recorded sequence.
func (m *MemorySender) Chunks() []Chunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Chunk, len(m.chunks))
	copy(out, m.chunks)
	return out
}

// Payload reassembles the Data chunks of the last completed transfer.
func (m *MemorySender) Payload() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []byte
	for _, c := range m.chunks {
		if c.Kind == KindData {
			out = append(out, c.Payload...)
		}
	}
	return out
}
