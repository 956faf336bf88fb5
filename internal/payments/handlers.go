package payments

import (
	"net/http"
	"strconv"
	"sync"

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
		log.Ctx(r.Context()).Error().Msg("Payment service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return nil
	}
	return service
}

func idFromPath(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Validation("invalid %s", name)
	}
	return id, nil
}

// paymentResponse decorates a payment with the reconciliation outcome of the
// push that followed the write.
type paymentResponse struct {
	*Payment
	Reconciled bool `json:"reconciled"`
}

// GET /api/payments
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

// GET /api/payments/{id}
func HandleGet(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	p, err := s.Get(r.Context(), id)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, p)
}

// POST /api/payments
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
	p, reconciled, err := s.Create(r.Context(), params)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	log.Ctx(r.Context()).Info().
		Int64("payment_id", p.ID).
		Int64("reservation_id", p.ReservationID).
		Str("method", string(p.Method)).
		Bool("reconciled", reconciled).
		Msg("payment created")
	apiutil.WriteJSON(w, r, http.StatusOK, paymentResponse{Payment: p, Reconciled: reconciled})
}

// PUT /api/payments/{id}
func HandleUpdate(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var params UpdateParams
	if err := apiutil.DecodeJSON(r, &params); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	p, reconciled, err := s.Update(r.Context(), id, params)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, paymentResponse{Payment: p, Reconciled: reconciled})
}

// DELETE /api/payments/{id}
func HandleDelete(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r, "id")
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

// GET /api/payments/{id}/exists
func HandleExists(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r, "id")
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

type cancelRequest struct {
	Reason string `json:"reason"`
}

// PUT /api/payments/{id}/cancel-by-reason
func HandleCancelByReason(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	id, err := idFromPath(r, "id")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	var req cancelRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	p, reconciled, err := s.CancelByReason(r.Context(), id, req.Reason)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, paymentResponse{Payment: p, Reconciled: reconciled})
}

// GET /api/payments/by-reservation/{reservationId}
func HandleListByReservation(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	reservationID, err := idFromPath(r, "reservationId")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	list, err := s.ListByReservation(r.Context(), reservationID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, list)
}

// GET /api/payments/by-status/{status}
func HandleListByStatus(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	list, err := s.ListByStatus(r.Context(), r.PathValue("status"))
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, list)
}

type totalPaidResponse struct {
	ReservationID int64           `json:"reservationId"`
	TotalPaid     decimal.Decimal `json:"totalPaid"`
}

// GET /api/payments/by-reservation/{reservationId}/total-paid
func HandleTotalPaid(w http.ResponseWriter, r *http.Request) {
	s := loadService(w, r)
	if s == nil {
		return
	}
	reservationID, err := idFromPath(r, "reservationId")
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	total, err := s.TotalPaid(r.Context(), reservationID)
	if err != nil {
		apiutil.WriteError(w, r, err)
		return
	}
	apiutil.WriteJSON(w, r, http.StatusOK, totalPaidResponse{ReservationID: reservationID, TotalPaid: total})
}
