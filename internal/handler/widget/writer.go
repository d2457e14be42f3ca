package widget

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 54 * time.Second
)

// connWriter owns every write to a connection. State frames are coalesced:
// a slow client only ever receives the newest snapshot.
type connWriter struct {
	conn   *websocket.Conn
	logger zerolog.Logger

	mu      sync.Mutex
	state   *stateFrame
	queue   []outgoingMessage
	stopped bool

	wake chan struct{}
	done chan struct{}
}

func newConnWriter(conn *websocket.Conn, logger zerolog.Logger) *connWriter {
	return &connWriter{
		conn:   conn,
		logger: logger,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// setState replaces the pending state frame.
func (w *connWriter) setState(frame stateFrame) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.state = &frame
	w.mu.Unlock()
	w.signal()
}

// send queues a frame that must not be coalesced.
func (w *connWriter) send(typ string, data interface{}) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.queue = append(w.queue, outgoingMessage{Type: typ, Data: data, Timestamp: time.Now().Unix()})
	w.mu.Unlock()
	w.signal()
}

func (w *connWriter) signal() {
	select {
	case w.wake <- struct{}{}:
	default:
	}
}

// run writes frames and pings until stop is closed or a write fails.
func (w *connWriter) run(stop <-chan struct{}) {
	defer close(w.done)
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			w.flush()
			return
		case <-w.wake:
			if err := w.flush(); err != nil {
				w.logger.Debug().Err(err).Msg("write failed")
				w.halt()
				return
			}
		case <-ticker.C:
			_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := w.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				w.halt()
				return
			}
		}
	}
}

func (w *connWriter) flush() error {
	w.mu.Lock()
	queue, state := w.queue, w.state
	w.queue, w.state = nil, nil
	w.mu.Unlock()

	for _, msg := range queue {
		if err := w.write(msg); err != nil {
			return err
		}
	}
	if state != nil {
		return w.write(outgoingMessage{Type: "state", Data: state, Timestamp: time.Now().Unix()})
	}
	return nil
}

func (w *connWriter) write(msg outgoingMessage) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteJSON(msg)
}

func (w *connWriter) halt() {
	w.mu.Lock()
	w.stopped = true
	w.queue, w.state = nil, nil
	w.mu.Unlock()
}
