// Package coordinator runs one grounded generation turn: retrieve context,
// stream the generator over it, resolve citation markers back to memory
// nodes, persist the exchange, and feed usage back into node scores.
package coordinator

// EventType discriminates the typed events streamed to the client during a
// turn
type EventType string

const (
	EventStatus   EventType = "status"
	EventContent  EventType = "content"
	EventCitation EventType = "citation"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Stage names the pipeline step a status event reports on
type Stage string

const (
	StageAnalysis   Stage = "analysis"
	StageRetrieval  Stage = "retrieval"
	StageGeneration Stage = "generation"
	StageFeedback   Stage = "feedback"
)

// Citation links a marker in the response text to the memory node and source
// it grounds on
type Citation struct {
	Marker int    `json:"marker"`
	NodeID string `json:"node_id"`
	Source string `json:"source"`
}

// Event is one streamed turn event. Only the fields for its type are set.
type Event struct {
	Type     EventType `json:"type"`
	Stage    Stage     `json:"stage,omitempty"`
	Message  string    `json:"message,omitempty"`
	Progress float64   `json:"progress,omitempty"` // fraction of the turn completed, 1.0 on done
	Degraded bool      `json:"degraded,omitempty"` // a retrieval signal was lost this turn
	Content  string    `json:"content,omitempty"`  // generator delta
	Citation *Citation `json:"citation,omitempty"`
	Error    string    `json:"error,omitempty"`
}

// stageProgress reports how far through the turn each stage begins
var stageProgress = map[Stage]float64{
	StageAnalysis:   0.1,
	StageRetrieval:  0.3,
	StageGeneration: 0.5,
	StageFeedback:   0.9,
}

func statusEvent(stage Stage, message string, degraded bool) Event {
	return Event{
		Type:     EventStatus,
		Stage:    stage,
		Message:  message,
		Progress: stageProgress[stage],
		Degraded: degraded,
	}
}
