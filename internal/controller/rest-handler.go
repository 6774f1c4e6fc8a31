package controller

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coview/groupwatch/internal/service/relay"
)

type registerRoomRequest struct {
	RoomKey   string `json:"room_key" validate:"required,min=3,max=64"`
	AuthToken string `json:"auth_token" validate:"required,max=512"`
}

type resolveRoomResponse struct {
	AuthToken string `json:"auth_token"`
}

func (c controller) registerRoom(w http.ResponseWriter, r *http.Request) {
	var input registerRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		c.logger.DebugContext(r.Context(), "failed to decode register room body", "error", err)
		c.writeError(w, http.StatusBadRequest, "malformed body")
		return
	}

	if validationErrors, ok := c.validate.Validate(input); !ok {
		c.writeJSON(w, http.StatusBadRequest, map[string]any{"errors": validationErrors})
		return
	}

	err := c.relayService.RegisterRoom(r.Context(), &relay.RegisterRoomParams{
		RoomKey:   input.RoomKey,
		AuthToken: input.AuthToken,
	})
	if err != nil {
		if errors.Is(err, relay.ErrRoomKeyTaken) {
			c.writeError(w, http.StatusConflict, "room key already taken")
			return
		}
		c.logger.WarnContext(r.Context(), "failed to register room", "error", err)
		c.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	w.WriteHeader(http.StatusCreated)
}

func (c controller) resolveRoom(w http.ResponseWriter, r *http.Request) {
	roomKey := chi.URLParam(r, "room-key")
	if roomKey == "" {
		c.writeError(w, http.StatusBadRequest, "empty room key")
		return
	}

	authToken, err := c.relayService.ResolveRoom(r.Context(), roomKey)
	if err != nil {
		if errors.Is(err, relay.ErrRoomKeyNotFound) {
			c.writeError(w, http.StatusNotFound, "room not found")
			return
		}
		c.logger.WarnContext(r.Context(), "failed to resolve room", "error", err)
		c.writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	c.writeJSON(w, http.StatusOK, resolveRoomResponse{AuthToken: authToken})
}
