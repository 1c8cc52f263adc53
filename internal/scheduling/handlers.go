package scheduling

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/carebridge/hms/pkg/rbac"
	"github.com/carebridge/hms/pkg/types"
)

// The HTTP layer is a thin presentation surface over the four role-scoped
// views; it never touches the store directly. The acting user is identified
// by the X-User-ID header and authorized through the directory role and the
// rbac permission table before the view is invoked.

// setupRoutes configures HTTP routes for the scheduling service
func (s *Service) setupRoutes(router *mux.Router) {
	api := router.PathPrefix("/api/v1").Subrouter()

	// Patient operations
	api.HandleFunc("/appointments", s.createAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/reschedule", s.rescheduleAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}", s.cancelAppointmentHandler).Methods("DELETE")
	api.HandleFunc("/patients/{patientId}/appointments", s.getPatientAppointmentsHandler).Methods("GET")

	// Doctor operations
	api.HandleFunc("/doctors/{doctorId}/appointments", s.getDoctorAppointmentsHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/appointments/upcoming", s.getUpcomingAppointmentsHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}/decision", s.decideAppointmentHandler).Methods("POST")
	api.HandleFunc("/appointments/{id}/outcome", s.completeAppointmentHandler).Methods("POST")

	// Pharmacist operations
	api.HandleFunc("/outcomes", s.listOutcomeRecordsHandler).Methods("GET")
	api.HandleFunc("/appointments/{id}/dispense", s.dispenseHandler).Methods("POST")

	// Administrator operations
	api.HandleFunc("/appointments", s.listAllAppointmentsHandler).Methods("GET")

	// Calendar
	api.HandleFunc("/doctors/{doctorId}/slots", s.getSlotsHandler).Methods("GET")
	api.HandleFunc("/doctors/{doctorId}/calendar", s.renderCalendarHandler).Methods("GET")

	s.logger.Info("Scheduling service routes configured")
}

type createAppointmentRequest struct {
	DoctorID  string    `json:"doctor_id"`
	SlotStart time.Time `json:"slot_start"`
}

type rescheduleRequest struct {
	SlotStart time.Time `json:"slot_start"`
}

type decisionRequest struct {
	Accepted bool `json:"accepted"`
}

// createAppointmentHandler handles patient appointment booking
func (s *Service) createAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionBook)
	if !ok {
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, types.NewValidationError("invalid request body", nil))
		return
	}

	apt, err := s.store.PatientView().Create(actor.ID, req.DoctorID, req.SlotStart)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusCreated, apt)
}

// rescheduleAppointmentHandler handles patient rescheduling
func (s *Service) rescheduleAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionReschedule)
	if !ok {
		return
	}
	id, ok := s.appointmentID(w, r)
	if !ok {
		return
	}

	var req rescheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, types.NewValidationError("invalid request body", nil))
		return
	}

	if err := s.store.PatientView().Reschedule(actor.ID, id, req.SlotStart); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "rescheduled"})
}

// cancelAppointmentHandler handles patient cancellation
func (s *Service) cancelAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionCancel)
	if !ok {
		return
	}
	id, ok := s.appointmentID(w, r)
	if !ok {
		return
	}

	if err := s.store.PatientView().Cancel(actor.ID, id); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "canceled"})
}

// getPatientAppointmentsHandler lists the acting patient's appointments
func (s *Service) getPatientAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionListOwn)
	if !ok {
		return
	}
	if mux.Vars(r)["patientId"] != actor.ID {
		s.writeErrorResponse(w, types.NewForbiddenError("patients can only list their own appointments"))
		return
	}

	appts, err := s.store.PatientView().ListMine(actor.ID)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, appts)
}

// getDoctorAppointmentsHandler lists the acting doctor's appointments
func (s *Service) getDoctorAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionListOwn)
	if !ok {
		return
	}
	if mux.Vars(r)["doctorId"] != actor.ID {
		s.writeErrorResponse(w, types.NewForbiddenError("doctors can only list their own appointments"))
		return
	}

	appts, err := s.store.DoctorView().ListMine(actor.ID)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, appts)
}

// getUpcomingAppointmentsHandler lists the acting doctor's confirmed appointments
func (s *Service) getUpcomingAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionListOwn)
	if !ok {
		return
	}
	if mux.Vars(r)["doctorId"] != actor.ID {
		s.writeErrorResponse(w, types.NewForbiddenError("doctors can only list their own appointments"))
		return
	}

	appts, err := s.store.DoctorView().ListUpcoming(actor.ID)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, appts)
}

// decideAppointmentHandler handles the doctor's accept/decline decision
func (s *Service) decideAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionDecide)
	if !ok {
		return
	}
	id, ok := s.appointmentID(w, r)
	if !ok {
		return
	}

	var req decisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeErrorResponse(w, types.NewValidationError("invalid request body", nil))
		return
	}

	if err := s.store.DoctorView().Decide(actor.ID, id, req.Accepted); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]bool{"accepted": req.Accepted})
}

// completeAppointmentHandler records an appointment outcome
func (s *Service) completeAppointmentHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.authorize(w, r, rbac.ActionComplete)
	if !ok {
		return
	}
	id, ok := s.appointmentID(w, r)
	if !ok {
		return
	}

	var outcome types.OutcomeRecord
	if err := json.NewDecoder(r.Body).Decode(&outcome); err != nil {
		s.writeErrorResponse(w, types.NewValidationError("invalid request body", nil))
		return
	}

	if err := s.store.DoctorView().Complete(actor.ID, id, outcome); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "completed"})
}

// listOutcomeRecordsHandler lists every outcome record for the pharmacist
func (s *Service) listOutcomeRecordsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionListOutcomes); !ok {
		return
	}

	entries, err := s.store.PharmacistView().ListOutcomeRecords()
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, entries)
}

// dispenseHandler marks a prescription as dispensed
func (s *Service) dispenseHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionDispense); !ok {
		return
	}
	id, ok := s.appointmentID(w, r)
	if !ok {
		return
	}

	if err := s.store.PharmacistView().Dispense(id); err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, map[string]string{"status": "dispensed"})
}

// listAllAppointmentsHandler is the administrator's unfiltered view
func (s *Service) listAllAppointmentsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionListAll); !ok {
		return
	}

	appts, err := s.store.AdministratorView().ListAll()
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, appts)
}

// getSlotsHandler lists a doctor's slots for one date
func (s *Service) getSlotsHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionViewCalendar); !ok {
		return
	}

	date, err := time.ParseInLocation(types.SlotDateFormat, r.URL.Query().Get("date"), time.Local)
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError("date query parameter must be YYYY-MM-DD", nil))
		return
	}

	slots, err := s.store.SlotsOn(mux.Vars(r)["doctorId"], date)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	s.writeJSONResponse(w, http.StatusOK, slots)
}

// renderCalendarHandler renders a doctor's month grid as plain text
func (s *Service) renderCalendarHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionViewCalendar); !ok {
		return
	}

	month, err := time.Parse("2006-01", r.URL.Query().Get("month"))
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError("month query parameter must be YYYY-MM", nil))
		return
	}
	onlyAvailable, _ := strconv.ParseBool(r.URL.Query().Get("available"))

	grid, err := s.store.RenderCalendar(mux.Vars(r)["doctorId"], month.Year(), month.Month(), onlyAvailable)
	if err != nil {
		s.writeErrorResponse(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(grid))
}

// healthCheckHandler reports service liveness
func (s *Service) healthCheckHandler(w http.ResponseWriter, r *http.Request) {
	s.writeJSONResponse(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "scheduling",
	})
}

// authorize resolves the acting user from the X-User-ID header and checks
// the rbac permission table for the requested action.
func (s *Service) authorize(w http.ResponseWriter, r *http.Request, action string) (*types.UserRecord, bool) {
	userID := r.Header.Get("X-User-ID")
	if userID == "" {
		s.writeErrorResponse(w, types.NewValidationError("X-User-ID header is required", nil))
		return nil, false
	}

	user, err := s.directory.Lookup(userID)
	if err != nil {
		s.writeErrorResponse(w, types.NewNotFoundError("unknown user "+userID))
		return nil, false
	}

	if !rbac.Allowed(user.Role, action) {
		s.writeErrorResponse(w, types.NewForbiddenError(
			"role "+user.Role+" may not perform "+action))
		return nil, false
	}

	return user, true
}

// appointmentID parses the {id} path variable.
func (s *Service) appointmentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := strconv.Atoi(mux.Vars(r)["id"])
	if err != nil {
		s.writeErrorResponse(w, types.NewValidationError("appointment id must be an integer", nil))
		return 0, false
	}
	return id, true
}

// writeJSONResponse writes a JSON response with the given status code
func (s *Service) writeJSONResponse(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.WithError(err).Error("Failed to encode response")
	}
}

// writeErrorResponse maps a scheduling error to an HTTP status and writes
// its structured form.
func (s *Service) writeErrorResponse(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := map[string]interface{}{"error": err.Error()}

	if se, ok := types.AsSchedulingError(err); ok {
		switch se.Type {
		case types.ErrorTypeNotFound:
			status = http.StatusNotFound
		case types.ErrorTypeForbidden:
			status = http.StatusForbidden
		case types.ErrorTypeInvalidState, types.ErrorTypeSlotUnavailable:
			status = http.StatusConflict
		case types.ErrorTypeValidation:
			status = http.StatusBadRequest
		}
		body = map[string]interface{}{
			"error": se.Message,
			"code":  se.Code,
			"type":  string(se.Type),
		}
	}

	s.writeJSONResponse(w, status, body)
}
