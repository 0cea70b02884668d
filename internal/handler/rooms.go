package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	apperrors "github.com/peerbeam/peerbeam/internal/errors"
	"github.com/peerbeam/peerbeam/internal/httputil"
	"github.com/peerbeam/peerbeam/internal/room"
)

type RoomHandler struct {
	coordinator *room.Coordinator
	createLimit func(http.Handler) http.Handler
}

// NewRoomHandler wires the room REST surface. createLimit, when non-nil,
// guards room creation only; status and close stay unthrottled.
func NewRoomHandler(coordinator *room.Coordinator, createLimit func(http.Handler) http.Handler) *RoomHandler {
	return &RoomHandler{coordinator: coordinator, createLimit: createLimit}
}

func (h *RoomHandler) Routes() chi.Router {
	r := chi.NewRouter()

	if h.createLimit != nil {
		r.With(h.createLimit).Post("/", h.CreateRoom)
	} else {
		r.Post("/", h.CreateRoom)
	}
	r.Get("/{code}", h.GetRoom)
	r.Delete("/{code}", h.CloseRoom)

	return r
}

type createRoomResponse struct {
	RoomCode  string `json:"roomCode"`
	ExpiresIn int    `json:"expiresIn"`
}

type roomStatusResponse struct {
	RoomCode         string    `json:"roomCode"`
	CreatedAt        time.Time `json:"createdAt"`
	ParticipantCount int       `json:"participantCount"`
	IsFull           bool      `json:"isFull"`
}

// POST /rooms
func (h *RoomHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	created, err := h.coordinator.Create(r.Context(), "")
	if err != nil {
		log.Error().Err(err).Msg("failed to create room")
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, createRoomResponse{
		RoomCode:  created.Code,
		ExpiresIn: int(h.coordinator.TTL().Seconds()),
	})
}

// GET /rooms/{code}
func (h *RoomHandler) GetRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	got, err := h.coordinator.Get(r.Context(), code)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, roomStatusResponse{
		RoomCode:         got.Code,
		CreatedAt:        got.CreatedAt,
		ParticipantCount: len(got.Participants),
		IsFull:           got.IsFull(),
	})
}

// DELETE /rooms/{code}
func (h *RoomHandler) CloseRoom(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if code == "" {
		httputil.WriteError(w, apperrors.MissingRequired("code"))
		return
	}

	if err := h.coordinator.Close(r.Context(), code); err != nil {
		httputil.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
