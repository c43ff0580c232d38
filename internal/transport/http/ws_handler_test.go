package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scilab-live-service/internal/app"
	"scilab-live-service/internal/domain"
	"scilab-live-service/internal/infra/memory"
)

func newTestServer(t *testing.T) (*httptest.Server, *app.LiveService, domain.Session) {
	t.Helper()
	store := memory.NewStore()
	service := app.NewLiveService(store, memory.NewQuestionCache(store, time.Minute), 6)
	wsHandler := NewWSHandler(service, zap.NewNop())

	session, err := service.CreateSession(context.Background(), "host-1", 20, []domain.Question{
		{Text: "Which gas do plants absorb?", Options: []string{"Oxygen", "Carbon dioxide", "Nitrogen"}, CorrectAnswer: 1},
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", wsHandler.ServeWS)
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, service, session
}

func dial(t *testing.T, server *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	u := "ws" + server.URL[len("http"):] + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(u, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestWebSocketAnswerFlow(t *testing.T) {
	server, service, session := newTestServer(t)

	host := dial(t, server, "sessionId="+session.ID+"&userId=host-1&role=host")
	readNext(host, t, "answered")
	readNext(host, t, "leaderboard")

	participant := dial(t, server, "sessionId="+session.ID+"&userId=u1&name=Priya")
	readUntil(participant, t, "joined")

	if err := host.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readNext(host, t, "")

	question, err := service.CurrentQuestion(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("current question: %v", err)
	}

	answer := map[string]any{
		"type": "answer",
		"payload": map[string]any{
			"questionId":    question.ID,
			"selectedIndex": 1,
			"timeTakenMs":   5000,
		},
	}
	if err := participant.WriteJSON(answer); err != nil {
		t.Fatalf("write answer: %v", err)
	}

	// Expect answerResult then leaderboard, interleaved with change events.
	answerSeen := false
	leaderboardSeen := false
	for i := 0; i < 6 && !(answerSeen && leaderboardSeen); i++ {
		typ, payload := readNext(participant, t, "")
		switch typ {
		case "answerResult":
			answerSeen = true
			if correct, _ := payload["correct"].(bool); !correct {
				t.Fatalf("expected a correct answer, got %+v", payload)
			}
			if points, _ := payload["pointsEarned"].(float64); points != 750 {
				t.Fatalf("expected 750 points, got %v", points)
			}
		case "leaderboard":
			leaderboardSeen = true
		}
	}
	if !answerSeen || !leaderboardSeen {
		t.Fatalf("expected answerResult and leaderboard, got answerResult=%v leaderboard=%v", answerSeen, leaderboardSeen)
	}

	// A second submission for the same question is rejected.
	if err := participant.WriteJSON(answer); err != nil {
		t.Fatalf("rewrite answer: %v", err)
	}
	sawError := false
	for i := 0; i < 6 && !sawError; i++ {
		typ, _ := readNext(participant, t, "")
		sawError = typ == "error"
	}
	if !sawError {
		t.Fatalf("expected an error for the duplicate answer")
	}
}

func TestWebSocketHostGuards(t *testing.T) {
	server, _, session := newTestServer(t)

	participant := dial(t, server, "sessionId="+session.ID+"&userId=u1&name=Priya")
	readUntil(participant, t, "joined")

	if err := participant.WriteJSON(map[string]any{"type": "start"}); err != nil {
		t.Fatalf("write start: %v", err)
	}
	readUntil(participant, t, "error")
}

func TestWebSocketRejectsMissingIdentity(t *testing.T) {
	server, _, session := newTestServer(t)

	resp, err := http.Get(server.URL + "/ws?sessionId=" + session.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp, err = http.Get(server.URL + "/ws?sessionId=" + session.ID + "&userId=u1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 without a display name, got %d", resp.StatusCode)
	}
}

func readNext(conn *websocket.Conn, t *testing.T, expect string) (string, map[string]any) {
	t.Helper()
	var msg struct {
		Type    string         `json:"type"`
		Payload map[string]any `json:"payload"`
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read json: %v", err)
	}
	if expect != "" && msg.Type != expect {
		t.Fatalf("expected type %s, got %s", expect, msg.Type)
	}
	return msg.Type, msg.Payload
}

// readUntil skips interleaved change events until a message of the wanted
// type arrives.
func readUntil(conn *websocket.Conn, t *testing.T, want string) map[string]any {
	t.Helper()
	for i := 0; i < 10; i++ {
		typ, payload := readNext(conn, t, "")
		if typ == want {
			return payload
		}
	}
	t.Fatalf("never received %s", want)
	return nil
}
