package screenclient

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kapu/astrofm-go/internal/orchestrator"
	"go.uber.org/zap"
)

type SnapshotCallback func(snap orchestrator.Snapshot)

type StateCallback func(state StreamState)

type snapshotEntry struct {
	id       int
	callback SnapshotCallback
}

type stateEntry struct {
	id       int
	callback StateCallback
}

// Stream follows one session's snapshots over a WebSocket, reconnecting
// after network errors. A normal closure from the server means the session
// is gone and ends the stream for good.
type Stream struct {
	url                  string
	conn                 *websocket.Conn
	connMu               sync.Mutex
	state                StreamState
	stateMu              sync.RWMutex
	snapshotCallbacks    []snapshotEntry
	stateCallbacks       []stateEntry
	nextCallbackID       int
	callbacksMu          sync.RWMutex
	reconnectAttempts    int
	maxReconnectAttempts int
	reconnectDelay       time.Duration
	logger               *zap.Logger
	stopCh               chan struct{}
	stopOnce             sync.Once
	listenerWg           sync.WaitGroup
}

func NewStream(url string, maxReconnectAttempts int, reconnectDelay time.Duration, logger *zap.Logger) *Stream {
	return &Stream{
		url:                  url,
		state:                StreamDisconnected,
		maxReconnectAttempts: maxReconnectAttempts,
		reconnectDelay:       reconnectDelay,
		logger:               logger,
		stopCh:               make(chan struct{}),
		nextCallbackID:       1,
	}
}

func (s *Stream) Connect(ctx context.Context) error {
	switch s.GetState() {
	case StreamConnected, StreamConnecting:
		s.logger.Warn("Snapshot stream already connected or connecting")
		return nil
	case StreamClosed:
		return errors.New("snapshot stream closed")
	}

	s.setState(StreamConnecting)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second

	conn, _, err := dialer.DialContext(ctx, s.url, nil)
	if err != nil {
		s.logger.Error("Failed to connect snapshot stream", zap.Error(err))
		s.setState(StreamFailed)
		s.scheduleReconnect(ctx)
		return err
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()
	s.reconnectAttempts = 0
	s.setState(StreamConnected)

	s.logger.Info("Snapshot stream connected", zap.String("url", s.url))

	s.listenerWg.Add(1)
	go s.listen(ctx, conn)

	return nil
}

func (s *Stream) listen(ctx context.Context, conn *websocket.Conn) {
	defer s.listenerWg.Done()
	defer s.logger.Debug("Snapshot listener stopped")

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.logger.Info("Session closed by server")
				s.setState(StreamClosed)
				return
			}
			select {
			case <-s.stopCh:
				return
			default:
			}
			s.logger.Warn("Snapshot stream read error", zap.Error(err))
			s.setState(StreamDisconnected)
			s.scheduleReconnect(ctx)
			return
		}

		s.handleMessage(data)
	}
}

func (s *Stream) handleMessage(data []byte) {
	var snap orchestrator.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		dataStr := string(data)
		if len(dataStr) > 200 {
			dataStr = dataStr[:200]
		}
		s.logger.Error("Failed to parse snapshot",
			zap.Error(err),
			zap.String("data", dataStr),
		)
		return
	}

	s.callbacksMu.RLock()
	callbacks := make([]snapshotEntry, len(s.snapshotCallbacks))
	copy(callbacks, s.snapshotCallbacks)
	s.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(snap)
	}
}

func (s *Stream) scheduleReconnect(ctx context.Context) {
	s.reconnectAttempts++

	if s.reconnectAttempts > s.maxReconnectAttempts {
		s.logger.Error("Max reconnect attempts reached",
			zap.Int("attempts", s.reconnectAttempts),
		)
		s.setState(StreamFailed)
		return
	}

	s.setState(StreamReconnecting)

	s.logger.Info("Scheduling reconnect",
		zap.Int("attempt", s.reconnectAttempts),
		zap.Int("max", s.maxReconnectAttempts),
		zap.Duration("delay", s.reconnectDelay),
	)

	go func() {
		select {
		case <-time.After(s.reconnectDelay):
			if err := s.Connect(ctx); err != nil {
				s.logger.Warn("Reconnect failed", zap.Error(err))
			}
		case <-s.stopCh:
		case <-ctx.Done():
		}
	}()
}

func (s *Stream) OnSnapshot(callback SnapshotCallback) func() {
	s.callbacksMu.Lock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.snapshotCallbacks = append(s.snapshotCallbacks, snapshotEntry{id: id, callback: callback})
	s.callbacksMu.Unlock()

	return func() {
		s.callbacksMu.Lock()
		defer s.callbacksMu.Unlock()
		for i, entry := range s.snapshotCallbacks {
			if entry.id == id {
				s.snapshotCallbacks = append(s.snapshotCallbacks[:i], s.snapshotCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (s *Stream) OnStateChange(callback StateCallback) func() {
	s.callbacksMu.Lock()
	id := s.nextCallbackID
	s.nextCallbackID++
	s.stateCallbacks = append(s.stateCallbacks, stateEntry{id: id, callback: callback})
	s.callbacksMu.Unlock()

	return func() {
		s.callbacksMu.Lock()
		defer s.callbacksMu.Unlock()
		for i, entry := range s.stateCallbacks {
			if entry.id == id {
				s.stateCallbacks = append(s.stateCallbacks[:i], s.stateCallbacks[i+1:]...)
				break
			}
		}
	}
}

func (s *Stream) setState(newState StreamState) {
	s.stateMu.Lock()
	oldState := s.state
	// Closed is terminal.
	if oldState == StreamClosed {
		s.stateMu.Unlock()
		return
	}
	s.state = newState
	s.stateMu.Unlock()

	if oldState == newState {
		return
	}
	s.logger.Debug("Snapshot stream state changed",
		zap.String("from", oldState.String()),
		zap.String("to", newState.String()),
	)

	s.callbacksMu.RLock()
	callbacks := make([]stateEntry, len(s.stateCallbacks))
	copy(callbacks, s.stateCallbacks)
	s.callbacksMu.RUnlock()

	for _, entry := range callbacks {
		entry.callback(newState)
	}
}

func (s *Stream) GetState() StreamState {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Stream) IsConnected() bool {
	return s.GetState() == StreamConnected
}

// Disconnect stops the stream and waits briefly for the listener to exit.
func (s *Stream) Disconnect() error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	s.connMu.Lock()
	conn := s.conn
	s.conn = nil
	s.connMu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		if err := conn.Close(); err != nil {
			s.logger.Warn("Failed to close snapshot stream", zap.Error(err))
		}
	}
	s.setState(StreamDisconnected)

	done := make(chan struct{})
	go func() {
		s.listenerWg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Timeout waiting for snapshot listener to stop")
	}
	return nil
}
