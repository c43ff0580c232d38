package app

import (
	"context"
	"sync"
	"time"

	"scilab-live-service/internal/domain"
)

// ParticipantController drives one participant's view of a session: join,
// observe transitions, answer the current question at most once, and render
// feedback from the local computation rather than a round-trip.
type ParticipantController struct {
	svc         *LiveService
	sessionID   string
	userID      string
	displayName string
	now         func() time.Time

	mu         sync.Mutex
	session    domain.Session
	answered   bool
	lastResult *domain.AnswerResult
	timer      countdown
	// questionShownAt is when this client observed the current question, the
	// basis for its reported TimeTakenMs.
	questionShownAt time.Time
}

func NewParticipantController(svc *LiveService, sessionID, userID, displayName string) *ParticipantController {
	return &ParticipantController{
		svc:         svc,
		sessionID:   sessionID,
		userID:      userID,
		displayName: displayName,
		now:         svc.now,
	}
}

// Join upserts this participant. Safe to call again on reconnect; the score
// survives.
func (p *ParticipantController) Join(ctx context.Context) (domain.Leaderboard, error) {
	return p.svc.Join(ctx, p.sessionID, p.userID, p.displayName)
}

// Watch consumes session transitions until ctx is done, resetting the local
// per-question state (answered flag, feedback, countdown) whenever the
// current question changes.
func (p *ParticipantController) Watch(ctx context.Context) error {
	events, cancel, err := p.svc.Subscribe(ctx, p.sessionID, domain.TableSessions)
	if err != nil {
		return err
	}
	defer cancel()

	session, err := p.svc.store.GetSession(ctx, p.sessionID)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.session = session
	if session.Status == domain.StatusActive {
		p.resetQuestionLocked(session)
	}
	p.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-events:
			if !ok {
				return nil
			}
			p.apply(event)
		}
	}
}

// SubmitAnswer answers the current question. The elapsed time is measured
// from when this client observed the question transition.
func (p *ParticipantController) SubmitAnswer(ctx context.Context, selectedIndex int) (domain.AnswerResult, error) {
	p.mu.Lock()
	if p.answered {
		p.mu.Unlock()
		return domain.AnswerResult{}, domain.ErrAlreadyAnswered
	}
	shownAt := p.questionShownAt
	p.mu.Unlock()

	question, err := p.svc.CurrentQuestion(ctx, p.sessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	timeTakenMs := 0
	if !shownAt.IsZero() {
		timeTakenMs = int(p.now().Sub(shownAt) / time.Millisecond)
	}

	result, _, err := p.svc.SubmitAnswer(ctx, p.sessionID, p.userID, question.ID, selectedIndex, timeTakenMs)
	if err != nil {
		return domain.AnswerResult{}, err
	}

	p.mu.Lock()
	p.answered = true
	p.lastResult = &result
	p.timer.freeze(p.now())
	p.mu.Unlock()
	return result, nil
}

// LastResult returns the locally computed feedback for the current question,
// or nil before an answer is submitted.
func (p *ParticipantController) LastResult() *domain.AnswerResult {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastResult
}

// Answered reports whether this participant has answered the current question.
func (p *ParticipantController) Answered() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.answered
}

// Remaining is the advisory countdown for the current question, frozen once
// this participant has answered.
func (p *ParticipantController) Remaining() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.timer.remaining(p.now())
}

func (p *ParticipantController) apply(event domain.Event) {
	if event.Table != domain.TableSessions || event.Session == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	prev := p.session
	p.session = *event.Session
	transitioned := prev.Status != event.Session.Status ||
		prev.CurrentQuestionIndex != event.Session.CurrentQuestionIndex
	if transitioned && event.Session.Status == domain.StatusActive {
		p.resetQuestionLocked(*event.Session)
	}
}

func (p *ParticipantController) resetQuestionLocked(session domain.Session) {
	now := p.now()
	p.answered = false
	p.lastResult = nil
	p.questionShownAt = now
	p.timer.reset(now, session.QuestionDurationSeconds)
}
