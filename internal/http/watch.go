package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/websocket"

	"github.com/example/chainride/internal/models"
)

const activityLimit = 50

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{CheckOrigin: func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range s.Origins {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}}
}

// handleWatchRide streams the ride view over a websocket, optionally scoped
// to ?clientId=.
func (s *Server) handleWatchRide(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clientID, err := optionalClient(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Watchers == nil {
		s.fail(w, r, models.Validationf("ride watch is not enabled"))
		return
	}
	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("websocket upgrade failed", "ride_id", rideID, "error", err)
		return
	}
	key := strconv.FormatUint(rideID, 10)
	s.Watchers.Watch(r.Context(), key, conn, func(ctx context.Context) ([]byte, error) {
		res, err := s.State.Aggregate(ctx, rideID, clientID)
		if err != nil {
			return nil, err
		}
		return json.Marshal(map[string]any{"success": true, "ride": res.View, "degraded": res.Degraded()})
	})
}

func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if s.Activity == nil {
		respond(w, http.StatusOK, envelope{"rideId": rideID, "activity": []json.RawMessage{}})
		return
	}
	limit := activityLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, models.Validationf("invalid limit %q", raw))
			return
		}
		limit = n
	}
	entries, err := s.Activity.Recent(r.Context(), rideID, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"rideId": rideID, "activity": entries})
}
