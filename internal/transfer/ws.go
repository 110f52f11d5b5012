package transfer

import (
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// WSSender delivers chunks over a WebSocket connection as JSON messages. It
// is the development-time transport; on the glasses the same contract is
// served by the Bluetooth link.
type WSSender struct {
	mu        sync.Mutex
	conn      *websocket.Conn
	chunkSize int
}

// NewWSSender wraps an established connection. chunkSize <= 0 uses
// DefaultChunkSize.
func NewWSSender(conn *websocket.Conn, chunkSize int) *WSSender {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	return &WSSender{conn: conn, chunkSize: chunkSize}
}

// DialWS connects to a receiving endpoint and returns a sender over it.
func DialWS(url string, chunkSize int) (*WSSender, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial transfer endpoint: %w", err)
	}
	return NewWSSender(conn, chunkSize), nil
}

// ChunkSize returns the Data slice size this sender uses.
func (s *WSSender) ChunkSize() int { return s.chunkSize }

func (s *WSSender) SendStart(name string, totalSize int) error {
	return s.write(Chunk{Kind: KindStart, Name: name, TotalSize: totalSize})
}

func (s *WSSender) SendData(payload []byte) error {
	return s.write(Chunk{Kind: KindData, Payload: payload})
}

func (s *WSSender) SendEnd() error {
	return s.write(Chunk{Kind: KindEnd})
}

// Send pushes a whole payload through this sender at its chunk size.
func (s *WSSender) Send(name string, payload []byte) error {
	return Send(s, name, payload, s.chunkSize)
}

func (s *WSSender) write(c Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(c)
}

// Close closes the underlying connection.
func (s *WSSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}
