package upstream

import (
	"context"
	"sync"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Stream is a single upstream reply delivered as incremental content deltas
// read from the thread's buffer WebSocket. It is finite and cannot be
// restarted.
//
// The buffer protocol carries two frame kinds the bridge cares about:
//
//	{"type":"state","state":{"inProgress":false}}   terminates the reply
//	{"type":"update","buffer":"<json>"}             carries a delta when the
//	                                                inner buffer is of type
//	                                                "chat" with non-empty
//	                                                chat.content
//
// Frames with malformed buffers are skipped, matching the upstream web
// client's behavior.
type Stream struct {
	conn   *websocket.Conn
	events chan string

	closeOnce sync.Once
	done      chan struct{}

	err error // written by the read loop before events is closed
}

func newStream(ctx context.Context, conn *websocket.Conn) *Stream {
	s := &Stream{
		conn:   conn,
		events: make(chan string),
		done:   make(chan struct{}),
	}

	// Propagate caller cancellation to the WebSocket read.
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	go s.readLoop(ctx)
	return s
}

// Events returns the channel of content deltas. It is closed after the
// terminal state frame, on error, or once the stream is abandoned.
func (s *Stream) Events() <-chan string {
	return s.events
}

// Err reports the failure that ended the stream, if any. It is meaningful
// only after Events has been closed.
func (s *Stream) Err() error {
	return s.err
}

// Close abandons the upstream read and releases the connection. It is safe
// to call concurrently and more than once.
func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.conn.Close()
	})
	return nil
}

func (s *Stream) readLoop(ctx context.Context) {
	defer close(s.events)
	defer s.Close()

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.done:
				// Abandoned by the consumer; report the cause when it
				// was a context cancellation.
				if ctx.Err() != nil {
					s.err = ctx.Err()
				}
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					// Clean close without a terminal state frame.
					return
				}
				s.err = err
			}
			return
		}

		switch gjson.GetBytes(data, "type").String() {
		case "state":
			if !gjson.GetBytes(data, "state.inProgress").Bool() {
				log.Debug("buffer stream reported completion")
				return
			}
		case "update":
			buffer := gjson.GetBytes(data, "buffer").String()
			if gjson.Get(buffer, "type").String() != "chat" {
				continue
			}
			content := gjson.Get(buffer, "chat.content").String()
			if content == "" {
				continue
			}
			select {
			case s.events <- content:
			case <-s.done:
				return
			}
		}
	}
}
