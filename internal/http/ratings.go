package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/models"
)

type rateBody struct {
	ClientAccount string      `json:"clientAccount"`
	Score         json.Number `json:"score"`
}

func (s *Server) handleRate(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body rateBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.ClientAccount, "clientAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	score, err := strconv.Atoi(body.Score.String())
	if err != nil {
		s.fail(w, r, models.ErrInvalidScore)
		return
	}
	id, err := s.Ratings.Submit(r.Context(), body.ClientAccount, rideID, score)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.New(events.RatingSubmitted, rideID, body.ClientAccount, map[string]string{
		"ratingId": idAttr(id),
		"score":    strconv.Itoa(score),
	}))
	respond(w, http.StatusOK, envelope{"message": "Rating submitted successfully", "ratingId": id})
}

func (s *Server) handleDriverRating(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driverId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	sum, err := s.Ratings.AverageFor(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"driverId": sum.DriverID, "averageRating": sum.Average, "ratingCount": sum.Count})
}

func (s *Server) handleDriverRatings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driverId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.Ratings.ForDriver(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"ratings": list})
}

func (s *Server) handleRideRatings(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	list, err := s.Ratings.ForRide(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"ratings": list})
}
