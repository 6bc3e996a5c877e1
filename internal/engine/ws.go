package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeTimeout = 5 * time.Second
	eventBuffer  = 32
)

// wsEngine speaks the engine's event socket: a read pump decoding events,
// a write pump draining the command queue.
type wsEngine struct {
	conn   *websocket.Conn
	events chan Event
	send   chan Command
	once   sync.Once
	done   chan struct{}
}

// Dial connects to the engine's event endpoint for one room. The caller
// owns the returned Engine and must Close it.
func Dial(ctx context.Context, url string) (Engine, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial engine: %w", err)
	}
	e := &wsEngine{
		conn:   conn,
		events: make(chan Event, eventBuffer),
		send:   make(chan Command, eventBuffer),
		done:   make(chan struct{}),
	}
	go e.readPump()
	go e.writePump()
	log.Info().Str("module", "engine.ws").Str("url", url).Msg("engine connected")
	return e, nil
}

func (e *wsEngine) Events() <-chan Event { return e.events }

func (e *wsEngine) Send(ctx context.Context, cmd Command) error {
	select {
	case <-e.done:
		return fmt.Errorf("engine closed")
	default:
	}
	select {
	case e.send <- cmd:
		return nil
	case <-e.done:
		return fmt.Errorf("engine closed")
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *wsEngine) Close() {
	e.once.Do(func() {
		close(e.done)
		_ = e.conn.Close()
	})
}

func (e *wsEngine) readPump() {
	defer func() {
		e.Close()
		close(e.events)
	}()
	for {
		_, data, err := e.conn.ReadMessage()
		if err != nil {
			log.Debug().Str("module", "engine.ws").Err(err).Msg("read pump closing")
			return
		}
		var ev Event
		if err := json.Unmarshal(data, &ev); err != nil {
			log.Warn().Str("module", "engine.ws").Err(err).Msg("bad event payload")
			continue
		}
		select {
		case e.events <- ev:
		case <-e.done:
			return
		}
	}
}

func (e *wsEngine) writePump() {
	for {
		select {
		case <-e.done:
			return
		case cmd := <-e.send:
			data, err := json.Marshal(cmd)
			if err != nil {
				log.Warn().Str("module", "engine.ws").Err(err).Msg("marshal command")
				continue
			}
			if err := e.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
				log.Warn().Str("module", "engine.ws").Err(err).Msg("set write deadline")
				return
			}
			if err := e.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Warn().Str("module", "engine.ws").Err(err).Msg("write command")
				return
			}
		}
	}
}
