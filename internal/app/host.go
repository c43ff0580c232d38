package app

import (
	"context"
	"sync"
	"time"

	"scilab-live-service/internal/domain"
)

// HostController is the privileged actor for one session. It is constructed
// with the host's identity rather than reading it from ambient state, and it
// is the only path that mutates session-level fields.
//
// If the host disconnects mid-session the session stays active indefinitely;
// there is no timeout-driven recovery. That is a deliberate property of the
// manual-pacing design, not an oversight.
type HostController struct {
	svc       *LiveService
	sessionID string
	hostID    string
	now       func() time.Time

	mu                sync.Mutex
	session           domain.Session
	currentQuestionID string
	answeredUsers     map[string]struct{}
	participants      int
	timer             countdown
}

func NewHostController(svc *LiveService, sessionID, hostID string) *HostController {
	return &HostController{
		svc:           svc,
		sessionID:     sessionID,
		hostID:        hostID,
		now:           svc.now,
		answeredUsers: make(map[string]struct{}),
	}
}

func (h *HostController) Start(ctx context.Context) (domain.Session, error) {
	return h.svc.StartSession(ctx, h.sessionID, h.hostID)
}

func (h *HostController) Advance(ctx context.Context) (domain.Session, error) {
	return h.svc.Advance(ctx, h.sessionID, h.hostID)
}

func (h *HostController) End(ctx context.Context) (domain.Session, error) {
	return h.svc.EndSession(ctx, h.sessionID, h.hostID)
}

func (h *HostController) Leaderboard(ctx context.Context) (domain.Leaderboard, error) {
	return h.svc.Leaderboard(ctx, h.sessionID)
}

// Watch consumes the change feed until ctx is done, maintaining the lobby
// size and the "N of M answered" counter for the current question. Call it
// from its own goroutine.
func (h *HostController) Watch(ctx context.Context) error {
	events, cancel, err := h.svc.Subscribe(ctx, h.sessionID)
	if err != nil {
		return err
	}
	defer cancel()

	if err := h.seed(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			h.apply(ctx, event)
		}
	}
}

// Answered reports how many of the lobby have answered the current question.
func (h *HostController) Answered() (answered, total int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.answeredUsers), h.participants
}

// Remaining is the host's advisory countdown for the current question.
func (h *HostController) Remaining() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.timer.remaining(h.now())
}

func (h *HostController) seed(ctx context.Context) error {
	session, err := h.svc.store.GetSession(ctx, h.sessionID)
	if err != nil {
		return err
	}
	answered, total, err := h.svc.AnsweredCount(ctx, h.sessionID)
	if err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.session = session
	h.participants = total
	h.answeredUsers = make(map[string]struct{}, answered)
	if session.Status == domain.StatusActive {
		h.refreshQuestionLocked(ctx)
	}
	return nil
}

func (h *HostController) apply(ctx context.Context, event domain.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch event.Table {
	case domain.TableSessions:
		if event.Session == nil {
			return
		}
		prev := h.session
		h.session = *event.Session
		transitioned := prev.Status != event.Session.Status ||
			prev.CurrentQuestionIndex != event.Session.CurrentQuestionIndex
		if transitioned {
			h.answeredUsers = make(map[string]struct{})
			if event.Session.Status == domain.StatusActive {
				h.refreshQuestionLocked(ctx)
				h.timer.reset(h.now(), event.Session.QuestionDurationSeconds)
			} else {
				h.currentQuestionID = ""
			}
		}
	case domain.TableParticipants:
		if event.Type == domain.EventInsert {
			h.participants++
		}
	case domain.TableAnswers:
		if event.Answer != nil && event.Answer.QuestionID == h.currentQuestionID {
			h.answeredUsers[event.Answer.UserID] = struct{}{}
		}
	}
}

func (h *HostController) refreshQuestionLocked(ctx context.Context) {
	question, err := h.svc.CurrentQuestion(ctx, h.sessionID)
	if err != nil {
		h.currentQuestionID = ""
		return
	}
	h.currentQuestionID = question.ID
}
