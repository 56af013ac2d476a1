package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/coop-room-backend/internal/engine"
	"github.com/DoyleJ11/coop-room-backend/internal/hub"
	"github.com/DoyleJ11/coop-room-backend/internal/idgen"
	"github.com/DoyleJ11/coop-room-backend/internal/room"
)

const maxCodeAttempts = 16

type RoomSummary struct {
	Code    string       `json:"code"`
	Members int          `json:"members"`
	Version int          `json:"version"`
	Phase   engine.Phase `json:"phase"`
	Round   int          `json:"round"`
	Players []string     `json:"players"`
	Lock    LockSummary  `json:"lock"`
}

type LockSummary struct {
	Active bool   `json:"active"`
	Owner  string `json:"owner,omitempty"`
}

// CreateRoom hands out an unused room code. The room itself is created by the
// first websocket join.
func CreateRoom(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for range maxCodeAttempts {
			code, err := idgen.RoomCode()
			if err != nil {
				http.Error(w, "failed to generate code", http.StatusInternalServerError)
				return
			}
			rm, err := h.Get(r.Context(), code)
			if err != nil {
				http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
				return
			}
			if rm == nil {
				writeJSON(w, http.StatusCreated, struct {
					Code string `json:"code"`
				}{Code: code})
				return
			}
			log.Debug("httpapi.code_collision", zap.String("room", code))
		}
		http.Error(w, "failed to generate code", http.StatusInternalServerError)
	}
}

func ListRooms(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		codes, err := h.List(r.Context())
		if err != nil {
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
			return
		}

		rooms := make([]RoomSummary, 0, len(codes))
		for _, code := range codes {
			sum, err := summarize(r, h, code)
			if err != nil {
				// Closed since List; skip it.
				continue
			}
			rooms = append(rooms, sum)
		}
		writeJSON(w, http.StatusOK, struct {
			Rooms []RoomSummary `json:"rooms"`
		}{Rooms: rooms})
	}
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sum, err := summarize(r, h, chi.URLParam(r, "roomCode"))
		switch {
		case errors.Is(err, room.ErrClosed):
			http.Error(w, "room not found", http.StatusNotFound)
		case err != nil:
			http.Error(w, "hub unavailable", http.StatusServiceUnavailable)
		default:
			writeJSON(w, http.StatusOK, sum)
		}
	}
}

// summarize returns room.ErrClosed when no open room has code.
func summarize(r *http.Request, h *hub.Hub, code string) (RoomSummary, error) {
	rm, err := h.Get(r.Context(), code)
	if err != nil {
		return RoomSummary{}, err
	}
	if rm == nil {
		return RoomSummary{}, room.ErrClosed
	}
	v, err := rm.State(r.Context())
	if err != nil {
		return RoomSummary{}, err
	}

	players := make([]string, 0, len(v.State.Players))
	for _, id := range v.State.Players {
		players = append(players, string(id))
	}
	return RoomSummary{
		Code:    code,
		Members: v.NumClients,
		Version: v.State.Version,
		Phase:   v.State.Phase,
		Round:   v.State.Round,
		Players: players,
		Lock:    LockSummary{Active: v.State.Lock.Active, Owner: string(v.State.Lock.Owner)},
	}, nil
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
