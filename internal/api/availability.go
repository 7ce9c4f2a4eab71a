package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/availability"
)

func listWindowsHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		windows, err := svc.ListByDoctor(r.Context(), doctorID)
		if err != nil {
			handleError(w, err)
			return
		}
		if windows == nil {
			windows = []availability.Window{}
		}

		writeJSON(w, http.StatusOK, windows)
	}
}

func createWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}

		win, ok := decodeWindow(w, r, doctorID)
		if !ok {
			return
		}

		created, err := svc.Create(r.Context(), win)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, created)
	}
}

func updateWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		windowID, ok := uuidParam(w, r, "windowID")
		if !ok {
			return
		}
		if !ownedBy(w, r, svc, windowID, doctorID) {
			return
		}

		win, ok := decodeWindow(w, r, doctorID)
		if !ok {
			return
		}
		win.ID = windowID

		updated, err := svc.Update(r.Context(), win)
		if err != nil {
			handleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteWindowHandler(svc AvailabilityService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "doctorID")
		if !ok {
			return
		}
		windowID, ok := uuidParam(w, r, "windowID")
		if !ok {
			return
		}
		if !ownedBy(w, r, svc, windowID, doctorID) {
			return
		}

		if err := svc.Delete(r.Context(), windowID); err != nil {
			handleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

// ownedBy writes a 404 unless the window exists and belongs to doctorID.
func ownedBy(w http.ResponseWriter, r *http.Request, svc AvailabilityService, windowID, doctorID uuid.UUID) bool {
	existing, err := svc.Get(r.Context(), windowID)
	if err != nil {
		handleError(w, err)
		return false
	}
	if existing.DoctorID != doctorID {
		handleError(w, availability.ErrWindowNotFound)
		return false
	}
	return true
}

func decodeWindow(w http.ResponseWriter, r *http.Request, doctorID uuid.UUID) (availability.Window, bool) {
	var req WindowRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return availability.Window{}, false
	}
	if req.DayOfWeek == nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "day_of_week is required")
		return availability.Window{}, false
	}

	start, err := availability.ParseTimeOfDay(req.StartTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_start_time", err.Error())
		return availability.Window{}, false
	}
	end, err := availability.ParseTimeOfDay(req.EndTime)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_end_time", err.Error())
		return availability.Window{}, false
	}

	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}

	return availability.Window{
		DoctorID:  doctorID,
		DayOfWeek: time.Weekday(*req.DayOfWeek),
		Start:     start,
		End:       end,
		IsActive:  active,
	}, true
}
