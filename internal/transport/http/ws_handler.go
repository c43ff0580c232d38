package http

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"scilab-live-service/internal/app"
	"scilab-live-service/internal/domain"
)

type WSHandler struct {
	service  *app.LiveService
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.LiveService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		service: service,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type answerPayload struct {
	QuestionID    string `json:"questionId"`
	SelectedIndex int    `json:"selectedIndex"`
	TimeTakenMs   int    `json:"timeTakenMs"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and wires them into the live
// session use cases. Participants connect with ?sessionId=&userId=&name=,
// hosts add &role=host. Hosts receive every change event; participants only
// see session and participant changes, never other users' answer rows.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	role := r.URL.Query().Get("role")
	if sessionID == "" || userID == "" {
		http.Error(w, "missing sessionId or userId", http.StatusBadRequest)
		return
	}
	if role != "host" && displayName == "" {
		http.Error(w, "missing name", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	var tables []domain.Table
	if role != "host" {
		tables = []domain.Table{domain.TableSessions, domain.TableParticipants}
	}
	updates, cancel, err := h.service.Subscribe(r.Context(), sessionID, tables...)
	if err != nil {
		send <- errorMessage(err)
		close(send)
		<-writerDone
		return
	}
	defer cancel()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case event, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "change", Payload: event}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	if role == "host" {
		if err := h.sendHostSnapshot(r, send, sessionID); err != nil {
			send <- errorMessage(err)
		}
	} else {
		joined, err := h.service.Join(r.Context(), sessionID, userID, displayName)
		if err != nil {
			send <- errorMessage(err)
			close(closeSignals)
			<-updatesDone
			close(send)
			<-writerDone
			return
		}
		send <- outboundMessage[any]{Type: "joined", Payload: joined}
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		h.handleMessage(r, send, inbound, role, sessionID, userID)
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

func (h *WSHandler) handleMessage(r *http.Request, send chan outboundMessage[any], inbound inboundMessage, role, sessionID, userID string) {
	ctx := r.Context()
	switch inbound.Type {
	case "start":
		if role != "host" {
			send <- errorMessage(domain.ErrNotHost)
			return
		}
		session, err := h.service.StartSession(ctx, sessionID, userID)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "session", Payload: session}
	case "advance":
		if role != "host" {
			send <- errorMessage(domain.ErrNotHost)
			return
		}
		session, err := h.service.Advance(ctx, sessionID, userID)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "session", Payload: session}
	case "end":
		if role != "host" {
			send <- errorMessage(domain.ErrNotHost)
			return
		}
		session, err := h.service.EndSession(ctx, sessionID, userID)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "session", Payload: session}
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answer payload"}}
			return
		}
		result, lb, err := h.service.SubmitAnswer(ctx, sessionID, userID, payload.QuestionID, payload.SelectedIndex, payload.TimeTakenMs)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "answerResult", Payload: result}
		send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
	case "leaderboard":
		lb, err := h.service.Leaderboard(ctx, sessionID)
		if err != nil {
			send <- errorMessage(err)
			return
		}
		send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
	default:
		send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
	}
}

func (h *WSHandler) sendHostSnapshot(r *http.Request, send chan outboundMessage[any], sessionID string) error {
	answered, total, err := h.service.AnsweredCount(r.Context(), sessionID)
	if err != nil {
		return err
	}
	send <- outboundMessage[any]{Type: "answered", Payload: map[string]int{"answered": answered, "total": total}}
	lb, err := h.service.Leaderboard(r.Context(), sessionID)
	if err != nil {
		return err
	}
	send <- outboundMessage[any]{Type: "leaderboard", Payload: lb}
	return nil
}

func errorMessage(err error) outboundMessage[any] {
	return outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
}
