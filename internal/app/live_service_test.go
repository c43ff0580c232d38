package app_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"scilab-live-service/internal/app"
	"scilab-live-service/internal/domain"
	"scilab-live-service/internal/infra/memory"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 8, 30, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestService() (*app.LiveService, *memory.Store, *fakeClock) {
	store := memory.NewStore()
	clock := newFakeClock()
	questions := memory.NewQuestionCache(store, time.Minute)
	service := app.NewLiveServiceWithClock(store, questions, 6, clock.Now)
	return service, store, clock
}

func threeQuestions() []domain.Question {
	return []domain.Question{
		{Text: "Which gas do plants absorb?", Options: []string{"Oxygen", "Carbon dioxide", "Nitrogen"}, CorrectAnswer: 1},
		{Text: "Water's chemical formula?", Options: []string{"H2O", "CO2"}, CorrectAnswer: 0},
		{Text: "Unit of force?", Options: []string{"Joule", "Newton", "Watt", "Pascal"}, CorrectAnswer: 1},
	}
}

func TestEndToEndScenario(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, err := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if session.Status != domain.StatusWaiting {
		t.Fatalf("expected waiting, got %s", session.Status)
	}
	if len(session.GameCode) != 6 || session.GameCode != strings.ToUpper(session.GameCode) {
		t.Fatalf("expected 6-char uppercase code, got %q", session.GameCode)
	}

	if _, err := service.Join(ctx, session.ID, "u1", "Priya"); err != nil {
		t.Fatalf("join: %v", err)
	}

	started, err := service.StartSession(ctx, session.ID, "teacher-1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.StatusActive || started.CurrentQuestionIndex != 0 {
		t.Fatalf("expected active at index 0, got %s index %d", started.Status, started.CurrentQuestionIndex)
	}
	if started.StartedAt == nil {
		t.Fatalf("expected StartedAt stamped")
	}

	question, err := service.CurrentQuestion(ctx, session.ID)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}
	result, lb, err := service.SubmitAnswer(ctx, session.ID, "u1", question.ID, question.CorrectAnswer, 5000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !result.Correct || result.PointsEarned != 750 || result.TotalScore != 750 {
		t.Fatalf("expected 750 points at 5000ms of 20s, got %+v", result)
	}
	if lb.Entries[0].Score != 750 {
		t.Fatalf("expected leaderboard score 750, got %+v", lb.Entries)
	}

	// Advance through the remaining questions, then once more to finish.
	for want := 1; want <= 2; want++ {
		advanced, err := service.Advance(ctx, session.ID, "teacher-1")
		if err != nil {
			t.Fatalf("advance to %d: %v", want, err)
		}
		if advanced.Status != domain.StatusActive || advanced.CurrentQuestionIndex != want {
			t.Fatalf("expected active at index %d, got %s index %d", want, advanced.Status, advanced.CurrentQuestionIndex)
		}
	}
	finished, err := service.Advance(ctx, session.ID, "teacher-1")
	if err != nil {
		t.Fatalf("final advance: %v", err)
	}
	if finished.Status != domain.StatusFinished {
		t.Fatalf("expected finished, got %s", finished.Status)
	}
	if finished.FinishedAt == nil {
		t.Fatalf("expected FinishedAt stamped")
	}

	// No transition leaves finished.
	if _, err := service.Advance(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected not-active on advance after finish, got %v", err)
	}
	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrSessionNotWaiting) {
		t.Fatalf("expected not-waiting on start after finish, got %v", err)
	}

	final, err := service.Leaderboard(ctx, session.ID)
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if len(final.Entries) != 1 || final.Entries[0].Score != 750 {
		t.Fatalf("expected final score 750, got %+v", final.Entries)
	}
}

func TestStartGuards(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, err := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrNoParticipants) {
		t.Fatalf("expected empty-lobby refusal, got %v", err)
	}

	if _, err := service.Join(ctx, session.ID, "u1", "Priya"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartSession(ctx, session.ID, "someone-else"); !errors.Is(err, domain.ErrNotHost) {
		t.Fatalf("expected host check, got %v", err)
	}
	if _, err := service.Advance(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrSessionNotActive) {
		t.Fatalf("expected not-active on advance before start, got %v", err)
	}

	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); !errors.Is(err, domain.ErrSessionNotWaiting) {
		t.Fatalf("expected double-start refusal, got %v", err)
	}
}

func TestJoinIsIdempotent(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	if _, err := service.Join(ctx, session.ID, "u1", "Priya"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}
	question, _ := service.CurrentQuestion(ctx, session.ID)
	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", question.ID, question.CorrectAnswer, 0); err != nil {
		t.Fatalf("submit: %v", err)
	}

	// Rejoin on reconnect: no duplicate row, score survives, name refreshes.
	lb, err := service.Join(ctx, session.ID, "u1", "Priya R")
	if err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(lb.Entries) != 1 {
		t.Fatalf("expected one participant after rejoin, got %d", len(lb.Entries))
	}
	if lb.Entries[0].Score != 1000 {
		t.Fatalf("expected score preserved at 1000, got %d", lb.Entries[0].Score)
	}
	if lb.Entries[0].DisplayName != "Priya R" {
		t.Fatalf("expected refreshed name, got %q", lb.Entries[0].DisplayName)
	}
}

func TestSubmitAnswerAtMostOnce(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")
	_, _ = service.StartSession(ctx, session.ID, "teacher-1")
	question, _ := service.CurrentQuestion(ctx, session.ID)

	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", question.ID, question.CorrectAnswer, 1000); err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", question.ID, 0, 2000); !errors.Is(err, domain.ErrAlreadyAnswered) {
		t.Fatalf("expected already-answered, got %v", err)
	}

	count, err := store.AnswerCount(ctx, session.ID, question.ID)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected exactly one answer record, got %d", count)
	}

	p, err := store.GetParticipant(ctx, session.ID, "u1")
	if err != nil {
		t.Fatalf("participant: %v", err)
	}
	if p.Score != 950 {
		t.Fatalf("expected score unchanged by the rejected duplicate, got %d", p.Score)
	}
}

func TestSubmitAnswerGuards(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")

	firstQuestionID := ""
	{
		if _, err := service.StartSession(ctx, session.ID, "teacher-1"); err != nil {
			t.Fatalf("start: %v", err)
		}
		q, err := service.CurrentQuestion(ctx, session.ID)
		if err != nil {
			t.Fatalf("current question: %v", err)
		}
		firstQuestionID = q.ID
	}

	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", firstQuestionID, 99, 0); !errors.Is(err, domain.ErrInvalidOption) {
		t.Fatalf("expected invalid-option, got %v", err)
	}
	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", "nope", 0, 0); !errors.Is(err, domain.ErrQuestionNotFound) {
		t.Fatalf("expected question-not-found, got %v", err)
	}
	if _, _, err := service.SubmitAnswer(ctx, session.ID, "stranger", firstQuestionID, 0, 0); !errors.Is(err, domain.ErrParticipantNotFound) {
		t.Fatalf("expected participant-not-found, got %v", err)
	}

	// After the host advances, answers to the old question are stale.
	if _, err := service.Advance(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if _, _, err := service.SubmitAnswer(ctx, session.ID, "u1", firstQuestionID, 0, 0); !errors.Is(err, domain.ErrQuestionClosed) {
		t.Fatalf("expected question-closed for stale submission, got %v", err)
	}
}

func TestTimeTakenIsClamped(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")
	_, _ = service.StartSession(ctx, session.ID, "teacher-1")
	question, _ := service.CurrentQuestion(ctx, session.ID)

	// A skewed client clock can report negative elapsed time; the score must
	// still cap at 1000.
	result, _, err := service.SubmitAnswer(ctx, session.ID, "u1", question.ID, question.CorrectAnswer, -4000)
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if result.PointsEarned != 1000 {
		t.Fatalf("expected clamped score 1000, got %d", result.PointsEarned)
	}
}

func TestEndSessionEarly(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")
	_, _ = service.StartSession(ctx, session.ID, "teacher-1")

	ended, err := service.EndSession(ctx, session.ID, "teacher-1")
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if ended.Status != domain.StatusFinished || ended.FinishedAt == nil {
		t.Fatalf("expected finished with timestamp, got %+v", ended)
	}

	if _, err := service.Join(ctx, session.ID, "u2", "Marco"); !errors.Is(err, domain.ErrSessionFinished) {
		t.Fatalf("expected finished refusal on join, got %v", err)
	}
}

func TestGameCodesAreUniqueAmongLiveSessions(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	seen := make(map[string]string)
	for i := 0; i < 25; i++ {
		session, err := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		if other, ok := seen[session.GameCode]; ok {
			t.Fatalf("code %s issued to both %s and %s", session.GameCode, other, session.ID)
		}
		seen[session.GameCode] = session.ID
	}
}

func TestLookupCode(t *testing.T) {
	ctx := context.Background()
	service, store, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	store.PutAssignment(domain.Assignment{ID: "a1", Code: "HW42XY", Active: true})
	store.PutAssignment(domain.Assignment{ID: "a2", Code: "OLDONE", Active: false})

	target, err := service.LookupCode(ctx, strings.ToLower(session.GameCode))
	if err != nil {
		t.Fatalf("lookup session code: %v", err)
	}
	if target.Session == nil || target.Session.ID != session.ID {
		t.Fatalf("expected session target, got %+v", target)
	}

	target, err = service.LookupCode(ctx, "hw42xy")
	if err != nil {
		t.Fatalf("lookup assignment code: %v", err)
	}
	if target.Assignment == nil || target.Assignment.ID != "a1" {
		t.Fatalf("expected assignment target, got %+v", target)
	}

	if _, err := service.LookupCode(ctx, "OLDONE"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected inactive assignment to be invisible, got %v", err)
	}
	if _, err := service.LookupCode(ctx, "ZZZZZZ"); !errors.Is(err, domain.ErrCodeNotFound) {
		t.Fatalf("expected code-not-found, got %v", err)
	}
}

func TestSubscribeReceivesTransitionsAndScores(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")

	events, cancel, err := service.Subscribe(ctx, session.ID, domain.TableSessions)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()

	if _, err := service.StartSession(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("start: %v", err)
	}

	select {
	case event := <-events:
		if event.Table != domain.TableSessions || event.Session == nil {
			t.Fatalf("expected session event, got %+v", event)
		}
		if event.Session.Status != domain.StatusActive {
			t.Fatalf("expected active transition, got %s", event.Session.Status)
		}
	case <-time.After(time.Second):
		t.Fatalf("no session event delivered")
	}
}

func TestAnsweredCountScopedToCurrentQuestion(t *testing.T) {
	ctx := context.Background()
	service, _, _ := newTestService()

	session, _ := service.CreateSession(ctx, "teacher-1", 20, threeQuestions())
	_, _ = service.Join(ctx, session.ID, "u1", "Priya")
	_, _ = service.Join(ctx, session.ID, "u2", "Marco")
	_, _ = service.StartSession(ctx, session.ID, "teacher-1")

	question, _ := service.CurrentQuestion(ctx, session.ID)
	_, _, _ = service.SubmitAnswer(ctx, session.ID, "u1", question.ID, 0, 100)

	answered, total, err := service.AnsweredCount(ctx, session.ID)
	if err != nil {
		t.Fatalf("answered count: %v", err)
	}
	if answered != 1 || total != 2 {
		t.Fatalf("expected 1 of 2 answered, got %d of %d", answered, total)
	}

	// Advancing moves the scope to the new question: the count starts over.
	if _, err := service.Advance(ctx, session.ID, "teacher-1"); err != nil {
		t.Fatalf("advance: %v", err)
	}
	answered, total, err = service.AnsweredCount(ctx, session.ID)
	if err != nil {
		t.Fatalf("answered count: %v", err)
	}
	if answered != 0 || total != 2 {
		t.Fatalf("expected 0 of 2 after advance, got %d of %d", answered, total)
	}
}
