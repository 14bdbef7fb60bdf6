package httpapi

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/DoyleJ11/blokus-relay/internal/hub"
	"github.com/DoyleJ11/blokus-relay/internal/lobby"
	"github.com/DoyleJ11/blokus-relay/internal/turn"
)

// Game ids are typed by hand, so the alphabet leaves out 0/O and 1/I/L.
const (
	gameIDLength   = 6
	gameIDAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"
	gameIDAttempts = 8
)

// NewGameID draws gameIDLength symbols from gameIDAlphabet.
func NewGameID() (string, error) {
	size := big.NewInt(int64(len(gameIDAlphabet)))
	var b strings.Builder
	b.Grow(gameIDLength)
	for range gameIDLength {
		n, err := rand.Int(rand.Reader, size)
		if err != nil {
			return "", fmt.Errorf("game id: %w", err)
		}
		b.WriteByte(gameIDAlphabet[n.Int64()])
	}
	return b.String(), nil
}

type gameSummary struct {
	GameID    string `json:"gameID"`
	Occupants int    `json:"occupants"`
	Turns     int    `json:"turns"`
}

type gameView struct {
	GameID     string              `json:"gameID"`
	Seats      [turn.MaxSeats]bool `json:"seats"`
	Spectators int                 `json:"spectators"`
	Turns      turn.Log            `json:"turns"`
}

func CreateGame(h *hub.Hub, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for range gameIDAttempts {
			code, err := NewGameID()
			if err != nil {
				log.Error("generate game id", zap.Error(err))
				http.Error(w, "failed to generate game id", http.StatusInternalServerError)
				return
			}
			_, err = h.Create(r.Context(), code)
			if errors.Is(err, hub.ErrLobbyExists) {
				log.Debug("collision on code, regenerating", zap.String("game_id", code))
				continue
			}
			if err != nil {
				log.Warn("create game failed", zap.Error(err))
				http.Error(w, "failed to create game", http.StatusServiceUnavailable)
				return
			}
			writeJSON(w, http.StatusCreated, struct {
				GameID string `json:"gameID"`
			}{GameID: code})
			return
		}
		http.Error(w, "failed to allocate game code", http.StatusInternalServerError)
	}
}

func ListGames(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := h.List(r.Context())
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		out := make([]gameSummary, 0, len(entries))
		for _, e := range entries {
			out = append(out, gameSummary{GameID: e.Code, Occupants: e.Stats.Occupants, Turns: e.Stats.Turns})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func GetGame(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		lb, err := h.Lookup(r.Context(), gameID)
		if err != nil {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		if lb == nil {
			http.NotFound(w, r)
			return
		}

		reply := make(chan lobby.View, 1)
		if !lb.Send(r.Context(), lobby.GetState{Reply: reply}) {
			http.NotFound(w, r)
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, gameView{
				GameID:     v.GameID,
				Seats:      v.Seats,
				Spectators: v.Spectators,
				Turns:      v.Turns,
			})
		case <-lb.Done():
			http.NotFound(w, r)
		case <-r.Context().Done():
		}
	}
}

// Healthz reports 503 once the hub has stopped, so a draining relay drops out
// of load balancing before its listener closes.
func Healthz(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-h.Done():
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "stopping"})
		default:
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
