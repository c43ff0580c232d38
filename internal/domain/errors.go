package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a session id or game code matches nothing.
	ErrSessionNotFound = errors.New("session not found")
	// ErrParticipantNotFound is returned when a user tries to act before joining.
	ErrParticipantNotFound = errors.New("participant not found in session")
	// ErrQuestionNotFound indicates a submitted question ID does not belong to the session.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrQuestionClosed rejects answers for a question that is no longer current.
	ErrQuestionClosed = errors.New("question is not the current question")
	// ErrInvalidOption indicates a selected answer index outside the option range.
	ErrInvalidOption = errors.New("selected answer out of range")
	// ErrSessionNotWaiting rejects a start on a session that already left waiting.
	ErrSessionNotWaiting = errors.New("session is not waiting")
	// ErrSessionNotActive rejects advance/end/answer on a non-active session.
	ErrSessionNotActive = errors.New("session is not active")
	// ErrSessionFinished rejects joins on a finished session.
	ErrSessionFinished = errors.New("session already finished")
	// ErrNotHost rejects session-level mutations from anyone but the creator.
	ErrNotHost = errors.New("caller is not the session host")
	// ErrNoParticipants refuses to start an empty session (lobby guard).
	ErrNoParticipants = errors.New("session has no participants")
	// ErrAlreadyAnswered enforces at most one answer per (session, question, user).
	ErrAlreadyAnswered = errors.New("already answered this question")
	// ErrCodeTaken indicates a game code collision at claim time.
	ErrCodeTaken = errors.New("game code already in use")
	// ErrCodeNotFound indicates a join code matched no live session or active assignment.
	ErrCodeNotFound = errors.New("no session or assignment for code")
	// ErrSessionLocked rejects question edits once a session has left waiting.
	ErrSessionLocked = errors.New("questions are immutable once the session started")
)
