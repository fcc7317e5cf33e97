package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"training-ledger-service/internal/app"
	"training-ledger-service/internal/domain"
	"training-ledger-service/internal/tutor"
)

// SessionHandler runs one learner session over a websocket: content-review
// confirmation, quiz submissions, tutor questions, and a live ledger feed.
// Session time is accounted server-side for the lifetime of the connection.
type SessionHandler struct {
	service       *app.LedgerService
	ledgers       app.LedgerStore
	tutor         tutor.Service
	flushInterval time.Duration
	log           *zap.Logger
	upgrader      websocket.Upgrader
}

func NewSessionHandler(service *app.LedgerService, ledgers app.LedgerStore, tutorSvc tutor.Service, flushInterval time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		service:       service,
		ledgers:       ledgers,
		tutor:         tutorSvc,
		flushInterval: flushInterval,
		log:           log,
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

type answersPayload struct {
	Answers map[string][]int `json:"answers"`
}

type tutorPayload struct {
	Question string `json:"question"`
}

type joinedPayload struct {
	Course       domain.Course        `json:"course"`
	Ledger       domain.LearnerLedger `json:"ledger"`
	QuizUnlocked bool                 `json:"quizUnlocked"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades the request and drives the session loop.
func (h *SessionHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	courseID := r.URL.Query().Get("courseId")
	department := r.URL.Query().Get("department")
	privileged := r.URL.Query().Get("role") == "admin"
	if userID == "" || courseID == "" {
		http.Error(w, "missing userId or courseId", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("ws upgrade failed", zap.Error(err))
		return
	}
	defer conn.Close()

	ctx := r.Context()
	course, err := h.service.Course(ctx, courseID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	ledger, err := h.service.Ledger(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}

	updates, cancelWatch, err := h.service.WatchLedger(ctx, userID)
	if err != nil {
		_ = conn.WriteJSON(outboundMessage[errorPayload]{Type: "error", Payload: errorPayload{Message: err.Error()}})
		return
	}
	defer cancelWatch()

	accountant := app.NewTimeAccountant(h.ledgers, userID, h.flushInterval, h.log, h.service.FailuresSink())
	go accountant.Run(context.WithoutCancel(ctx))
	defer accountant.Stop()

	contentReviewed := false

	send := make(chan outboundMessage[any], 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	updatesDone := make(chan struct{})

	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteJSON(msg); err != nil {
				h.log.Debug("ws write error", zap.Error(err))
				return
			}
		}
	}()

	go func() {
		defer close(updatesDone)
		for {
			select {
			case update, ok := <-updates:
				if !ok {
					return
				}
				select {
				case send <- outboundMessage[any]{Type: "ledger", Payload: update}:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	send <- outboundMessage[any]{Type: "joined", Payload: joinedPayload{
		Course:       course,
		Ledger:       ledger,
		QuizUnlocked: app.QuizUnlocked(course.HasReviewableContent(), contentReviewed, privileged),
	}}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "review":
			contentReviewed = true
			send <- outboundMessage[any]{Type: "reviewAck", Payload: map[string]bool{
				"quizUnlocked": app.QuizUnlocked(course.HasReviewableContent(), contentReviewed, privileged),
			}}
		case "answers":
			var payload answersPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid answers payload"}}
				continue
			}
			answers, err := decodeAnswerSet(payload.Answers)
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			result, err := h.service.SubmitAttempt(ctx, app.AttemptSubmission{
				UserID:          userID,
				Department:      department,
				CourseID:        courseID,
				Answers:         answers,
				ContentReviewed: contentReviewed,
				Privileged:      privileged,
			})
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "attemptResult", Payload: result}
			if result.BadgeGranted != "" {
				send <- outboundMessage[any]{Type: "badge", Payload: map[string]string{"badgeId": result.BadgeGranted}}
			}
		case "tutor":
			var payload tutorPayload
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "invalid tutor payload"}}
				continue
			}
			reply, err := h.tutor.Ask(ctx, payload.Question)
			if errors.Is(err, domain.ErrTutorUnavailable) {
				send <- outboundMessage[any]{Type: "tutorDisabled", Payload: errorPayload{Message: "tutor is currently unavailable"}}
				continue
			}
			if err != nil {
				send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: err.Error()}}
				continue
			}
			send <- outboundMessage[any]{Type: "tutorReply", Payload: reply}
		default:
			send <- outboundMessage[any]{Type: "error", Payload: errorPayload{Message: "unsupported message type"}}
		}
	}

	close(closeSignals)
	<-updatesDone
	close(send)
	<-writerDone
}

// decodeAnswerSet converts JSON's string-keyed answer object into the
// index-keyed domain form. Non-numeric keys are malformed input.
func decodeAnswerSet(raw map[string][]int) (domain.AnswerSet, error) {
	answers := make(domain.AnswerSet, len(raw))
	for key, selected := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			return nil, &domain.ValidationError{Field: "question", Reason: "key " + key + " is not an index"}
		}
		answers[idx] = selected
	}
	return answers, nil
}
