package httpapi

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/models"
)

type confirmBody struct {
	ClientMetaAccount string          `json:"clientMetaAccount"`
	Price             decimal.Decimal `json:"price"`
}

func (s *Server) handleConfirmPayment(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	var body confirmBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.ClientMetaAccount, "clientMetaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	receipt, err := s.Payments.Pay(r.Context(), rideID, body.ClientMetaAccount, body.Price)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.publish(r, events.New(events.PaymentSettled, rideID, body.ClientMetaAccount, map[string]string{
		"clientId":        idAttr(receipt.ClientID),
		"path":            receipt.Path,
		"transactionHash": receipt.TransactionRef,
		"amount":          body.Price.String(),
	}))
	respond(w, http.StatusOK, envelope{
		"message":         "Payment confirmed",
		"transactionHash": receipt.TransactionRef,
		"path":            receipt.Path,
		"rideId":          receipt.RideID,
		"clientId":        receipt.ClientID,
	})
}

// handleVerifyPayment runs the payment preconditions without paying. A
// failed precondition is a normal answer (canPay false), not an error.
func (s *Server) handleVerifyPayment(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	el, err := s.Payments.CheckEligibility(r.Context(), rideID, mux.Vars(r)["account"])
	if err != nil && !isPrecondition(err) {
		s.fail(w, r, err)
		return
	}
	body := envelope{
		"canPay":        err == nil,
		"clientId":      el.ClientID,
		"paymentStatus": el.PaymentStatus,
		"ride": map[string]any{
			"rideId":   el.Ride.ID,
			"price":    el.Ride.Price,
			"driverId": el.Ride.DriverID,
			"status":   el.Ride.Status,
		},
	}
	if err != nil {
		body["reason"] = err.Error()
	}
	respond(w, http.StatusOK, body)
}

func isPrecondition(err error) bool {
	return errors.Is(err, models.ErrRideNotCompleted) ||
		errors.Is(err, models.ErrNotAPassenger) ||
		errors.Is(err, models.ErrAlreadyPaid)
}

func (s *Server) handlePaymentStatus(w http.ResponseWriter, r *http.Request) {
	rideID, err := pathID(r, "rideId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	clientID, err := pathID(r, "clientId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	ps, err := s.State.PaymentStatus(r.Context(), rideID, clientID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{
		"paid":           ps.Paid,
		"status":         ps.Status,
		"source":         ps.Source,
		"transactionRef": ps.TransactionRef,
	})
}
