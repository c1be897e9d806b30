package admin

import (
	"encoding/json"
	"errors"
	"net/http"

	"coffeefleet-sim/internal/fleet"
)

func (s *Server) handleMachines(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.List())
}

func (s *Server) handleMachine(w http.ResponseWriter, r *http.Request) {
	m, err := s.catalog.Get(r.PathValue("id"))
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleMachineByMachineID(w http.ResponseWriter, r *http.Request) {
	m, err := s.catalog.GetByMachineID(r.PathValue("machineId"))
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleUpdateMachine(w http.ResponseWriter, r *http.Request) {
	var p fleet.Patch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	m, err := s.catalog.Update(r.PathValue("id"), p)
	if err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Machine updated successfully",
		"machine": m,
	})
}

func (s *Server) handleUpdateSupplies(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Supplies fleet.SupplyLevels `json:"supplies"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, err := s.catalog.UpdateSupplies(r.PathValue("id"), body.Supplies); err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Supplies updated successfully"})
}

func (s *Server) handleResolveAlert(w http.ResponseWriter, r *http.Request) {
	if err := s.catalog.ResolveAlert(r.PathValue("id"), r.PathValue("alertId")); err != nil {
		s.catalogError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Alert resolved"})
}

func (s *Server) handleLocations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Locations())
}

func (s *Server) handleOffices(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Offices(r.URL.Query().Get("location")))
}

func (s *Server) handleFloors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.catalog.Floors(q.Get("location"), q.Get("office")))
}

func (s *Server) handleByLocation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	writeJSON(w, http.StatusOK, s.catalog.Filter(q.Get("location"), q.Get("office"), q.Get("floor")))
}

func (s *Server) handleLowSupply(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.LowSupply())
}

func (s *Server) handleMaintenanceNeeded(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.MaintenanceNeeded())
}

func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.catalog.Summary())
}

func (s *Server) catalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrNotFound):
		writeError(w, http.StatusNotFound, "Machine not found")
	case errors.Is(err, fleet.ErrInvalidLevel):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("catalog request failed", "err", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
