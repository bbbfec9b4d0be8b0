package models

// EventType names a streamed event
type EventType string

const (
	EventStatus    EventType = "status"
	EventSubdomain EventType = "subdomain"
	EventComplete  EventType = "complete"
	EventError     EventType = "error"
)

// Event is one message pushed to a streaming client
type Event struct {
	Type EventType `json:"type"`
	Data any       `json:"data"`
}

// StatusPayload is the body of a status event
type StatusPayload struct {
	Message string `json:"message"`
}

// CompletePayload is the body of the final summary event
type CompletePayload struct {
	Total     int            `json:"total"`
	Message   string         `json:"message"`
	SessionID string         `json:"sessionId,omitempty"`
	Checked   int            `json:"checked"`
	Sources   map[Source]int `json:"sources,omitempty"`
	Wildcard  bool           `json:"wildcard"`
}

// ErrorPayload is the body of a terminal error event
type ErrorPayload struct {
	Message string `json:"message"`
}

func StatusEvent(msg string) Event {
	return Event{Type: EventStatus, Data: StatusPayload{Message: msg}}
}

func HitEvent(hit ClassifiedHit) Event {
	return Event{Type: EventSubdomain, Data: hit}
}

func CompleteEvent(p CompletePayload) Event {
	return Event{Type: EventComplete, Data: p}
}

func ErrorEvent(msg string) Event {
	return Event{Type: EventError, Data: ErrorPayload{Message: msg}}
}
