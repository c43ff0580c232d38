package domain

// Table names the record type an event refers to.
type Table string

const (
	TableSessions     Table = "sessions"
	TableParticipants Table = "participants"
	TableAnswers      Table = "answers"
)

// EventType distinguishes inserts from updates on the change feed.
type EventType string

const (
	EventInsert EventType = "insert"
	EventUpdate EventType = "update"
)

// Event is one change-feed notification, scoped to a session. Exactly one of
// the row pointers is set, matching Table.
type Event struct {
	Table       Table        `json:"table"`
	Type        EventType    `json:"eventType"`
	SessionID   string       `json:"sessionId"`
	Session     *Session     `json:"session,omitempty"`
	Participant *Participant `json:"participant,omitempty"`
	Answer      *Answer      `json:"answer,omitempty"`
}
