package request

// EventRequest is one invocation forwarded by an external websocket front,
// in the shape of a hosted websocket route event
type EventRequest struct {
	RequestContext EventContext `json:"requestContext"`

	// Body is the raw frame text, an encoded {action, body} envelope
	Body string `json:"body"`
}

// EventContext identifies the connection and route of an event
type EventContext struct {
	ConnectionID string `json:"connectionId"`
	RouteKey     string `json:"routeKey"`
}
