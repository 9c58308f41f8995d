package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/avvvet/bingo-rounds/internal/auth"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/engine"
	"github.com/avvvet/bingo-rounds/internal/gamesvc/models"
	"github.com/go-chi/chi"
	"github.com/go-chi/jwtauth"
	log "github.com/sirupsen/logrus"
)

// Rounds is the live engine surface used by the HTTP api.
type Rounds interface {
	Round(id int64) (*models.Round, bool)
	LiveRounds() []*models.Round
	Card(ctx context.Context, roundID int64, cardNumber int) (*models.Card, error)
	PurchaseCard(ctx context.Context, roundID, participantID int64, cardNumber int) (*models.Card, error)
	CancelRound(id int64) error
	ParticipantCardCount(ctx context.Context, roundID, participantID int64) (int, error)
	ParticipantCards(ctx context.Context, roundID, participantID int64) ([]*models.Card, error)
}

// History reads settled data straight from storage.
type History interface {
	GetRound(ctx context.Context, id int64) (*models.Round, error)
	ListRecentRounds(ctx context.Context, limit int) ([]*models.Round, error)
	FindParticipant(ctx context.Context, id int64) (*models.Participant, error)
	ListTransactions(ctx context.Context, participantID int64, limit int) ([]*models.Transaction, error)
}

type Handler struct {
	rounds    Rounds
	history   History
	tokenAuth *jwtauth.JWTAuth
	port      string
}

func NewHandler(rounds Rounds, history History, tokenAuth *jwtauth.JWTAuth, port string) *Handler {
	return &Handler{rounds: rounds, history: history, tokenAuth: tokenAuth, port: port}
}

type Response struct {
	Message string      `json:"message"`
	Code    int         `json:"code"`
	Data    interface{} `json:"data"`
	Error   string      `json:"error,omitempty"`
	Reason  string      `json:"reason,omitempty"`
}

func (h *Handler) CreateResponse(w http.ResponseWriter, rsp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(rsp.Code)

	if err := json.NewEncoder(w).Encode(rsp); err != nil {
		log.Errorf("Error encoding response: %s", err)
	}
}

func (h *Handler) fail(w http.ResponseWriter, code int, msg string, err error) {
	rsp := Response{Message: msg, Code: code}
	if err != nil {
		rsp.Error = err.Error()
		rsp.Reason = engine.ErrorCode(err)
	}
	h.CreateResponse(w, rsp)
}

func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{
		Message: "game service is running at port " + h.port,
		Code:    http.StatusOK,
		Data:    map[string]int{"live_rounds": len(h.rounds.LiveRounds())},
	})
}

func (h *Handler) ListRounds(w http.ResponseWriter, r *http.Request) {
	h.CreateResponse(w, Response{Message: "live rounds", Code: http.StatusOK, Data: h.rounds.LiveRounds()})
}

func (h *Handler) RoundHistory(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 20)
	if limit < 1 || limit > 100 {
		h.fail(w, http.StatusBadRequest, "limit must be between 1 and 100", nil)
		return
	}

	rounds, err := h.history.ListRecentRounds(r.Context(), limit)
	if err != nil {
		log.Errorf("Error listing recent rounds: %s", err)
		h.fail(w, http.StatusInternalServerError, "could not load rounds", nil)
		return
	}
	h.CreateResponse(w, Response{Message: "recent rounds", Code: http.StatusOK, Data: rounds})
}

func (h *Handler) GetRound(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r, "roundID")
	if !ok {
		return
	}

	if round, live := h.rounds.Round(id); live {
		h.CreateResponse(w, Response{Message: "round", Code: http.StatusOK, Data: round})
		return
	}

	round, err := h.history.GetRound(r.Context(), id)
	if err != nil {
		log.Errorf("Error loading round %d: %s", id, err)
		h.fail(w, http.StatusInternalServerError, "could not load round", nil)
		return
	}
	if round == nil {
		h.fail(w, http.StatusNotFound, "round not found", engine.ErrRoundNotFound)
		return
	}
	h.CreateResponse(w, Response{Message: "round", Code: http.StatusOK, Data: round})
}

func (h *Handler) GetCard(w http.ResponseWriter, r *http.Request) {
	roundID, ok := h.pathID(w, r, "roundID")
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "cardNumber"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid card number", nil)
		return
	}

	card, err := h.rounds.Card(r.Context(), roundID, n)
	if err != nil {
		h.fail(w, statusFor(err), "could not load card", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card", Code: http.StatusOK, Data: card})
}

func (h *Handler) PurchaseCard(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participant(w, r)
	if !ok {
		return
	}
	roundID, ok := h.pathID(w, r, "roundID")
	if !ok {
		return
	}
	n, err := strconv.Atoi(chi.URLParam(r, "cardNumber"))
	if err != nil {
		h.fail(w, http.StatusBadRequest, "invalid card number", nil)
		return
	}

	card, err := h.rounds.PurchaseCard(r.Context(), roundID, participantID, n)
	if err != nil {
		h.fail(w, statusFor(err), "purchase rejected", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card purchased", Code: http.StatusCreated, Data: card})
}

// CancelRound refunds and closes a scheduled round. Operators only.
func (h *Handler) CancelRound(w http.ResponseWriter, r *http.Request) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || claims["role"] != "operator" {
		h.fail(w, http.StatusForbidden, "operator token required", nil)
		return
	}
	id, ok := h.pathID(w, r, "roundID")
	if !ok {
		return
	}

	if err := h.rounds.CancelRound(id); err != nil {
		h.fail(w, statusFor(err), "could not cancel round", err)
		return
	}
	log.WithField("round", id).Warn("round cancelled by operator")
	h.CreateResponse(w, Response{Message: "round cancelled", Code: http.StatusOK})
}

func (h *Handler) MyCards(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participant(w, r)
	if !ok {
		return
	}
	roundID, err := strconv.ParseInt(r.URL.Query().Get("round"), 10, 64)
	if err != nil {
		h.fail(w, http.StatusBadRequest, "round query parameter is required", nil)
		return
	}

	cards, err := h.rounds.ParticipantCards(r.Context(), roundID, participantID)
	if err != nil {
		log.Errorf("Error loading cards of round %d: %s", roundID, err)
		h.fail(w, http.StatusInternalServerError, "could not load cards", nil)
		return
	}
	h.CreateResponse(w, Response{Message: "cards", Code: http.StatusOK, Data: cards})
}

func (h *Handler) MyCardCount(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participant(w, r)
	if !ok {
		return
	}
	roundID, ok := h.pathID(w, r, "roundID")
	if !ok {
		return
	}

	n, err := h.rounds.ParticipantCardCount(r.Context(), roundID, participantID)
	if err != nil {
		h.fail(w, statusFor(err), "could not count cards", err)
		return
	}
	h.CreateResponse(w, Response{Message: "card count", Code: http.StatusOK, Data: map[string]int{"cards": n}})
}

func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participant(w, r)
	if !ok {
		return
	}

	p, err := h.history.FindParticipant(r.Context(), participantID)
	if err != nil {
		log.Errorf("Error loading participant %d: %s", participantID, err)
		h.fail(w, http.StatusInternalServerError, "could not load participant", nil)
		return
	}
	if p == nil {
		h.fail(w, http.StatusNotFound, "participant not found", engine.ErrUnknownParticipant)
		return
	}
	h.CreateResponse(w, Response{Message: "participant", Code: http.StatusOK, Data: p})
}

func (h *Handler) MyTransactions(w http.ResponseWriter, r *http.Request) {
	participantID, ok := h.participant(w, r)
	if !ok {
		return
	}

	txs, err := h.history.ListTransactions(r.Context(), participantID, queryInt(r, "limit", 50))
	if err != nil {
		log.Errorf("Error loading transactions of %d: %s", participantID, err)
		h.fail(w, http.StatusInternalServerError, "could not load transactions", nil)
		return
	}
	h.CreateResponse(w, Response{Message: "transactions", Code: http.StatusOK, Data: txs})
}

func (h *Handler) participant(w http.ResponseWriter, r *http.Request) (int64, bool) {
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		h.fail(w, http.StatusUnauthorized, "unauthorized", nil)
		return 0, false
	}
	id, err := auth.ParticipantID(claims)
	if err != nil {
		h.fail(w, http.StatusForbidden, "token is not bound to a participant", nil)
		return 0, false
	}
	return id, true
}

func (h *Handler) pathID(w http.ResponseWriter, r *http.Request, key string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, key), 10, 64)
	if err != nil || id <= 0 {
		h.fail(w, http.StatusBadRequest, "invalid "+key, nil)
		return 0, false
	}
	return id, true
}

func queryInt(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func statusFor(err error) int {
	switch {
	case engine.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, engine.ErrRoundNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInsufficientBalance):
		return http.StatusPaymentRequired
	case errors.Is(err, engine.ErrCardUnavailable), errors.Is(err, engine.ErrCardLimitReached):
		return http.StatusConflict
	case engine.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
