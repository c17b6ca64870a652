package httpapi

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/example/chainride/internal/events"
	"github.com/example/chainride/internal/identity"
	"github.com/example/chainride/internal/models"
)

type driverBody struct {
	MetaAccount string `json:"metaAccount"`
	models.DriverProfile
}

type clientBody struct {
	MetaAccount string `json:"metaAccount"`
	models.ClientProfile
}

func requireField(v, name string) error {
	if strings.TrimSpace(v) == "" {
		return models.Validationf("%s is required", name)
	}
	return nil
}

func registrationStatus(reg identity.Registration) int {
	if reg.AlreadyRegistered {
		return http.StatusOK
	}
	return http.StatusCreated
}

func (s *Server) handleDriverRegister(w http.ResponseWriter, r *http.Request) {
	var body driverBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.MetaAccount, "metaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	reg, err := s.Registrar.RegisterDriver(r.Context(), body.MetaAccount, body.DriverProfile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !reg.AlreadyRegistered {
		s.publish(r, events.New(events.DriverRegistered, 0, body.MetaAccount, map[string]string{"driverId": idAttr(reg.ID)}))
	}
	respond(w, registrationStatus(reg), envelope{"driverId": reg.ID, "alreadyRegistered": reg.AlreadyRegistered})
}

func (s *Server) handleClientRegister(w http.ResponseWriter, r *http.Request) {
	var body clientBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.MetaAccount, "metaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	reg, err := s.Registrar.RegisterClient(r.Context(), body.MetaAccount, body.ClientProfile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !reg.AlreadyRegistered {
		s.publish(r, events.New(events.ClientRegistered, 0, body.MetaAccount, map[string]string{"clientId": idAttr(reg.ID)}))
	}
	respond(w, registrationStatus(reg), envelope{"clientId": reg.ID, "alreadyRegistered": reg.AlreadyRegistered})
}

func (s *Server) handleDrivers(w http.ResponseWriter, r *http.Request) {
	drivers, err := s.Profiles.Drivers(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"drivers": drivers})
}

func (s *Server) handleDriver(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "driverId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Profiles.Driver(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"driver": d})
}

func (s *Server) handleDriverByAccount(w http.ResponseWriter, r *http.Request) {
	d, err := s.Profiles.DriverByAccount(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"driver": d, "driverId": d.ID})
}

func (s *Server) handleDriverUpdate(w http.ResponseWriter, r *http.Request) {
	var body driverBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.MetaAccount, "metaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	d, err := s.Profiles.UpdateDriver(r.Context(), body.MetaAccount, body.DriverProfile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"driver": d, "driverId": d.ID})
}

func (s *Server) handleClient(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "clientId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Profiles.Client(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"client": c})
}

func (s *Server) handleClientByAccount(w http.ResponseWriter, r *http.Request) {
	c, err := s.Profiles.ClientByAccount(r.Context(), mux.Vars(r)["account"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"client": c, "clientId": c.ID})
}

func (s *Server) handleClientUpdate(w http.ResponseWriter, r *http.Request) {
	var body clientBody
	if err := decodeBody(r, &body); err != nil {
		s.fail(w, r, err)
		return
	}
	if err := requireField(body.MetaAccount, "metaAccount"); err != nil {
		s.fail(w, r, err)
		return
	}
	c, err := s.Profiles.UpdateClient(r.Context(), body.MetaAccount, body.ClientProfile)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"client": c, "clientId": c.ID})
}

func (s *Server) handleClientRequests(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "clientId")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	reqs, err := s.Rides.ClientRequests(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	respond(w, http.StatusOK, envelope{"requests": reqs})
}
