package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/DoyleJ11/math-tennis-backend/internal/difficulty"
	"github.com/DoyleJ11/math-tennis-backend/internal/session"
	"github.com/DoyleJ11/math-tennis-backend/pkg/types"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// RoomFinder is the read side of the hub used by the REST routes.
type RoomFinder interface {
	Room(code string) (types.RoomView, bool)
	Levels() difficulty.Levels
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Levels(rooms RoomFinder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		levels := rooms.Levels()
		out := make([]types.LevelInfo, 0, len(levels))
		for _, name := range levels.Names() {
			cfg := levels[name]
			out = append(out, types.LevelInfo{
				Name:         string(name),
				TimerSeconds: cfg.TimerSeconds,
				Division:     cfg.Division != nil,
				MultiStep:    cfg.MultiStep != nil && cfg.MultiStep.Enabled,
			})
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func Room(rooms RoomFinder, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		code, err := session.NormalizeCode(chi.URLParam(r, "code"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		view, ok := rooms.Room(code)
		if !ok {
			logger.Debug("room lookup miss", zap.String("room", code))
			http.Error(w, session.ErrNotFound.Error(), http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, view)
	}
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
