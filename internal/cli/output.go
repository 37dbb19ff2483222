package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"
)

// Output handles formatting output based on the configured format
type Output struct {
	format string
	w      io.Writer
}

// NewOutput creates a new Output formatter writing to w
func NewOutput(format string, w io.Writer) *Output {
	if w == nil {
		w = os.Stdout
	}
	return &Output{format: format, w: w}
}

// Print outputs data in the configured format
func (o *Output) Print(data any) {
	if o.format == "json" {
		o.printJSON(data)
	} else {
		o.printText(data)
	}
}

// PrintMessage outputs a simple message
func (o *Output) PrintMessage(msg string) {
	if o.format == "json" {
		data, _ := json.Marshal(map[string]string{"message": msg})
		fmt.Fprintln(o.w, string(data))
	} else {
		fmt.Fprintln(o.w, msg)
	}
}

func (o *Output) printJSON(data any) {
	if frame, ok := data.(Frame); ok {
		// one frame per line so the stream can be piped
		line, _ := json.Marshal(frame)
		fmt.Fprintln(o.w, string(line))
		return
	}
	enc := json.NewEncoder(o.w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(data)
}

func (o *Output) printText(data any) {
	switch v := data.(type) {
	case HealthResult:
		o.printHealthResult(v)
	case Group:
		o.printGroup(v)
	case TierHash:
		fmt.Fprintln(o.w, v.Hash)
	case Frame:
		o.printFrame(v)
	default:
		// Fallback to JSON for unknown types
		o.printJSON(data)
	}
}

// HealthResult response type
type HealthResult struct {
	Status      string `json:"status"`
	Connections int    `json:"connections"`
}

// Pilot response type (matches API)
type Pilot struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Tier   string `json:"tier,omitempty"`
	Online bool   `json:"online"`
}

// Group response type
type Group struct {
	ID          string    `json:"id"`
	Pilots      []Pilot   `json:"pilots"`
	Waypoints   int       `json:"waypoints"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TierHash is a computed tier table key
type TierHash struct {
	Hash string `json:"hash"`
}

// Frame is one websocket frame received by connect
type Frame struct {
	Time   time.Time       `json:"time"`
	Action string          `json:"action"`
	Body   json.RawMessage `json:"body"`
}

func (o *Output) printHealthResult(h HealthResult) {
	fmt.Fprintf(o.w, "Status: %s\n", h.Status)
	fmt.Fprintf(o.w, "Connections: %d\n", h.Connections)
}

func (o *Output) printGroup(g Group) {
	fmt.Fprintf(o.w, "Group: %s\n", g.ID)
	fmt.Fprintf(o.w, "Waypoints: %d (fingerprint %s)\n", g.Waypoints, g.Fingerprint)
	fmt.Fprintf(o.w, "Updated: %s\n", g.UpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(o.w, "Pilots (%d):\n", len(g.Pilots))
	for _, p := range g.Pilots {
		status := "offline"
		if p.Online {
			status = "online"
		}
		tier := ""
		if p.Tier != "" {
			tier = " [" + p.Tier + "]"
		}
		fmt.Fprintf(o.w, "  - %s (%s) - %s%s\n", p.Name, p.ID, status, tier)
	}
}

func (o *Output) printFrame(f Frame) {
	body := string(f.Body)
	// Truncate data if it's too long for display
	if len(body) > 200 {
		body = body[:200] + "..."
	}
	fmt.Fprintf(o.w, "[%s] %s: %s\n", f.Time.Format("15:04:05"), f.Action, body)
}
