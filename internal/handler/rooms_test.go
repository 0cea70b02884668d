package handler

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peerbeam/peerbeam/internal/room"
	"github.com/peerbeam/peerbeam/internal/store"
)

func newTestHandler() (*RoomHandler, *room.Coordinator) {
	coordinator := room.NewCoordinator(store.NewMemoryStore(), nil, 30*time.Minute)
	return NewRoomHandler(coordinator, nil), coordinator
}

func TestCreateRoom(t *testing.T) {
	h, _ := newTestHandler()
	router := h.Routes()

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)

	var resp createRoomResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Len(t, resp.RoomCode, 6)
	assert.Equal(t, 1800, resp.ExpiresIn)
}

func TestGetRoom(t *testing.T) {
	h, coordinator := newTestHandler()
	router := h.Routes()

	created, err := coordinator.Create(t.Context(), "")
	require.NoError(t, err)

	t.Run("returns room status", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/"+created.Code, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp roomStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, created.Code, resp.RoomCode)
		assert.Equal(t, 0, resp.ParticipantCount)
		assert.False(t, resp.IsFull)
	})

	t.Run("reflects participants", func(t *testing.T) {
		_, err := coordinator.Join(t.Context(), created.Code, "conn-1")
		require.NoError(t, err)
		_, err = coordinator.Join(t.Context(), created.Code, "conn-2")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/"+created.Code, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		var resp roomStatusResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 2, resp.ParticipantCount)
		assert.True(t, resp.IsFull)
	})

	t.Run("unknown code is 404 with ROOM_NOT_FOUND", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ZZZZZZ", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)

		var resp map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "ROOM_NOT_FOUND", resp["code"])
	})
}

func TestCloseRoom(t *testing.T) {
	h, coordinator := newTestHandler()
	router := h.Routes()

	created, err := coordinator.Create(t.Context(), "")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodDelete, "/"+created.Code, nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodDelete, "/"+created.Code, nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
