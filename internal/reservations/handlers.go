package reservations

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/courtbook/courtbook/internal/api/apiutil"
	"github.com/courtbook/courtbook/internal/apperr"
)

var (
	service     *Service
	serviceOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(s *Service) {
	if s == nil {
		return
	}
	serviceOnce.Do(func() {
		service = s
	})
}

func loadService(w http.ResponseWriter, r *http.Request) *Service {
	if service == nil {
		log.Ctx(r.Context()).Error().Msg("Reservation service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil
	}
	return service
}

func idFromPath(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid reservation id")
	}
	return id, nil
}

// GET /api/reservations
func HandleList(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	list, err := s.List(r.Context())
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, list)
}

// GET /api/reservations/my-reservations
// The gateway authenticates the caller and forwards their identity in the
// X-User-Email header.
func HandleMyReservations(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	email := r.Header.Get("X-User-Email")
	list, err := s.ListByUserEmail(r.Context(), email)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, list)
}

// GET /api/reservations/{id}
func HandleGet(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	res, err := s.Get(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, res)
}

// POST /api/reservations
func HandleCreate(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	var params CreateParams
	if err := apiutil.DecodeJSON(r, &params); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	res, err := s.Create(r.Context(), params)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().
		Int64("reservation_id", res.ID).
		Int64("court_id", res.CourtID).
		Time("start_time", res.StartTime).
		Msg("reservation created")
	apiutil.WriteJSON(w, r, http.StatusOK, res)
}

// PUT /api/reservations/{id}
func HandleUpdate(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var params UpdateParams
	if err := apiutil.DecodeJSON(r, &params); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	res, err := s.Update(r.Context(), id, params)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, res)
}

// DELETE /api/reservations/{id}
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	if err := s.Delete(r.Context(), id); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/reservations/{id}/exists
func HandleExists(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	exists, err := s.Exists(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, exists)
}

type paymentStatusRequest struct {
	PaymentStatus    string `json:"paymentStatus"`
	PaymentReference string `json:"paymentReference"`
	Notes            string `json:"notes"`
}

// PATCH /api/reservations/{id}/payment-status
func HandleUpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req paymentStatusRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	res, err := s.UpdatePaymentStatus(r.Context(), id, req.PaymentStatus, r.Header.Get("X-Event-ID"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().
		Int64("reservation_id", id).
		Str("payment_status", string(res.PaymentStatus)).
		Str("reference", req.PaymentReference).
		Msg("payment status updated")
	apiutil.WriteJSON(w, r, http.StatusOK, res)
}

// POST /api/reservations/{id}/apply-payment
func HandleApplyPayment(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var params ApplyPaymentParams
	if err := apiutil.DecodeJSON(r, &params); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	res, err := s.ApplyPayment(r.Context(), id, params, r.Header.Get("X-Event-ID"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, res)
}

type amountResponse struct {
	ReservationID int64           `json:"reservationId"`
	Amount        decimal.Decimal `json:"amount"`
}

// GET /api/reservations/{id}/pending-amount
func HandlePendingAmount(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	amount, err := s.PendingAmount(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, amountResponse{ReservationID: id, Amount: amount})
}

// GET /api/reservations/{id}/total-amount
func HandleTotalAmount(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	amount, err := s.TotalAmount(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, amountResponse{ReservationID: id, Amount: amount})
}

func conflictQuery(r *http.Request) (courtID int64, start, end time.Time, err error) {
	q := r.URL.Query()
	courtID, perr := strconv.ParseInt(q.Get("courtId"), 10, 64)
	if perr != nil || courtID <= 0 {
		return 0, time.Time{}, time.Time{}, apperr.Validation("courtId is required")
	}
	start, perr = time.Parse(time.RFC3339, q.Get("startTime"))
	if perr != nil {
		return 0, time.Time{}, time.Time{}, apperr.Validation("startTime must be RFC 3339")
	}
	end, perr = time.Parse(time.RFC3339, q.Get("endTime"))
	if perr != nil {
		return 0, time.Time{}, time.Time{}, apperr.Validation("endTime must be RFC 3339")
	}
	return courtID, start, end, nil
}

// GET /api/reservations/conflicts?courtId&startTime&endTime
func HandleConflicts(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	courtID, start, end, err := conflictQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	conflict, err := s.HasConflict(r.Context(), courtID, start, end)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, map[string]bool{"hasConflict": conflict})
}

// GET /api/reservations/conflicts/details?courtId&startTime&endTime
func HandleConflictDetails(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	courtID, start, end, err := conflictQuery(r)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	details, err := s.FindConflicts(r.Context(), courtID, start, end)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, details)
}
