package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
// Transitions only ever move forward: waiting -> active -> finished.
type SessionStatus string

const (
	StatusWaiting  SessionStatus = "waiting"
	StatusActive   SessionStatus = "active"
	StatusFinished SessionStatus = "finished"
)

// Session is one live, host-paced quiz instance.
type Session struct {
	ID                      string        `json:"id"`
	GameCode                string        `json:"gameCode"`
	HostID                  string        `json:"hostId"`
	Status                  SessionStatus `json:"status"`
	CurrentQuestionIndex    int           `json:"currentQuestionIndex"`
	QuestionDurationSeconds int           `json:"questionDurationSeconds"`
	StartedAt               *time.Time    `json:"startedAt,omitempty"`
	FinishedAt              *time.Time    `json:"finishedAt,omitempty"`
	CreatedAt               time.Time     `json:"createdAt"`
}

// Question belongs to exactly one session, ordered by OrderIndex (0-based,
// contiguous). Immutable once the session has left waiting.
type Question struct {
	ID            string   `json:"id"`
	SessionID     string   `json:"sessionId"`
	OrderIndex    int      `json:"orderIndex"`
	Text          string   `json:"text"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
}

// Participant is one (session, user) pair with a cumulative score.
// Score only ever grows, via atomic increments at the store.
type Participant struct {
	SessionID   string    `json:"sessionId"`
	UserID      string    `json:"userId"`
	DisplayName string    `json:"displayName"`
	Score       int       `json:"score"`
	JoinedAt    time.Time `json:"joinedAt"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Answer records one participant's response to one question. At most one
// exists per (session, question, user); stores reject duplicates.
type Answer struct {
	SessionID      string    `json:"sessionId"`
	QuestionID     string    `json:"questionId"`
	UserID         string    `json:"userId"`
	SelectedAnswer int       `json:"selectedAnswer"`
	IsCorrect      bool      `json:"isCorrect"`
	TimeTakenMs    int       `json:"timeTakenMs"`
	PointsEarned   int       `json:"pointsEarned"`
	AnsweredAt     time.Time `json:"answeredAt"`
}

// Assignment is the sibling self-paced quiz flow. Only its join-code
// namespace matters here: code lookup checks sessions first, then these.
type Assignment struct {
	ID     string `json:"id"`
	Code   string `json:"code"`
	Active bool   `json:"active"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
	Score       int    `json:"score"`
}

// Leaderboard captures the ordered scoreboard for a session.
type Leaderboard struct {
	SessionID string             `json:"sessionId"`
	Entries   []LeaderboardEntry `json:"entries"`
	UpdatedAt time.Time          `json:"updatedAt"`
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID   string `json:"questionId"`
	Correct      bool   `json:"correct"`
	PointsEarned int    `json:"pointsEarned"`
	TotalScore   int    `json:"totalScore"`
}

// CodeTarget is the result of a join-code lookup: exactly one of the two
// fields is set, sessions taking precedence over assignments.
type CodeTarget struct {
	Session    *Session    `json:"session,omitempty"`
	Assignment *Assignment `json:"assignment,omitempty"`
}
