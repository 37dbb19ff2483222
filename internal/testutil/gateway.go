package testutil

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/groupflight/flightgroup/internal/model"
	"github.com/groupflight/flightgroup/internal/protocol"
)

// Frame is one recorded push
type Frame struct {
	Connection model.ConnectionID
	Action     string
	Body       json.RawMessage
}

// RecordingGateway captures pushed frames in memory. Connections can be
// made to fail with a fixed error, such as delivery.ErrGone.
type RecordingGateway struct {
	mu       sync.Mutex
	frames   []Frame
	failures map[model.ConnectionID]error
	attempts map[model.ConnectionID]int
}

// NewRecordingGateway creates an empty RecordingGateway
func NewRecordingGateway() *RecordingGateway {
	return &RecordingGateway{
		failures: make(map[model.ConnectionID]error),
		attempts: make(map[model.ConnectionID]int),
	}
}

// Fail makes every push to conn return err; nil clears it
func (g *RecordingGateway) Fail(conn model.ConnectionID, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.failures, conn)
		return
	}
	g.failures[conn] = err
}

// Push records the frame or returns the configured failure
func (g *RecordingGateway) Push(_ context.Context, conn model.ConnectionID, payload []byte) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.attempts[conn]++
	if err := g.failures[conn]; err != nil {
		return err
	}
	env, err := protocol.ParseEnvelope(payload)
	if err != nil {
		return err
	}
	g.frames = append(g.frames, Frame{Connection: conn, Action: env.Action, Body: env.Body})
	return nil
}

// Frames returns every frame delivered to conn, in push order
func (g *RecordingGateway) Frames(conn model.ConnectionID) []Frame {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []Frame
	for _, f := range g.frames {
		if f.Connection == conn {
			out = append(out, f)
		}
	}
	return out
}

// Actions returns the action names delivered to conn, in push order
func (g *RecordingGateway) Actions(conn model.ConnectionID) []string {
	var out []string
	for _, f := range g.Frames(conn) {
		out = append(out, f.Action)
	}
	return out
}

// Last returns the most recent frame delivered to conn
func (g *RecordingGateway) Last(conn model.ConnectionID) (Frame, bool) {
	frames := g.Frames(conn)
	if len(frames) == 0 {
		return Frame{}, false
	}
	return frames[len(frames)-1], true
}

// Attempts returns how many pushes targeted conn, failed ones included
func (g *RecordingGateway) Attempts(conn model.ConnectionID) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.attempts[conn]
}

// Total returns the number of delivered frames across all connections
func (g *RecordingGateway) Total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.frames)
}

// Reset forgets recorded frames and attempts, keeping configured failures
func (g *RecordingGateway) Reset() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.frames = nil
	g.attempts = make(map[model.ConnectionID]int)
}
