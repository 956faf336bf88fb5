package reservations

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestServer(t *testing.T) (*httptest.Server, *Service) {
	t.Helper()

	svc, _, _, _ := newTestService(t)
	service = svc
	t.Cleanup(func() { service = nil })

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/reservations", HandleList)
	mux.HandleFunc("GET /api/reservations/my-reservations", HandleMyReservations)
	mux.HandleFunc("GET /api/reservations/conflicts", HandleConflicts)
	mux.HandleFunc("GET /api/reservations/conflicts/details", HandleConflictDetails)
	mux.HandleFunc("GET /api/reservations/{id}", HandleGet)
	mux.HandleFunc("POST /api/reservations", HandleCreate)
	mux.HandleFunc("PUT /api/reservations/{id}", HandleUpdate)
	mux.HandleFunc("DELETE /api/reservations/{id}", HandleDelete)
	mux.HandleFunc("GET /api/reservations/{id}/exists", HandleExists)
	mux.HandleFunc("PATCH /api/reservations/{id}/payment-status", HandleUpdatePaymentStatus)
	mux.HandleFunc("POST /api/reservations/{id}/apply-payment", HandleApplyPayment)
	mux.HandleFunc("GET /api/reservations/{id}/pending-amount", HandlePendingAmount)
	mux.HandleFunc("GET /api/reservations/{id}/total-amount", HandleTotalAmount)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, svc
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	return resp
}

func createBody() string {
	start := testBase.Add(24 * time.Hour).Format(time.RFC3339)
	end := testBase.Add(26 * time.Hour).Format(time.RFC3339)
	return fmt.Sprintf(`{"userId":5,"userEmail":"dana@example.com","courtId":1,"clubId":10,"startTime":%q,"endTime":%q}`, start, end)
}

func TestHandleCreateAndGet(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/reservations", createBody())
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var created Reservation
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if created.Status != StatusPending {
		t.Fatalf("expected PENDING, got %s", created.Status)
	}

	getResp, err := http.Get(fmt.Sprintf("%s/api/reservations/%d", server.URL, created.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer getResp.Body.Close()
	if getResp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", getResp.StatusCode)
	}

	missing, err := http.Get(server.URL + "/api/reservations/999")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", missing.StatusCode)
	}
}

func TestHandleCreateConflictStatus(t *testing.T) {
	server, _ := newTestServer(t)

	first := postJSON(t, server.URL+"/api/reservations", createBody())
	first.Body.Close()
	if first.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.StatusCode)
	}

	second := postJSON(t, server.URL+"/api/reservations", createBody())
	defer second.Body.Close()
	if second.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", second.StatusCode)
	}

	var body struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(second.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error == "" {
		t.Fatal("expected an error message")
	}
}

func TestHandleCreateRejectsUnknownFields(t *testing.T) {
	server, _ := newTestServer(t)

	resp := postJSON(t, server.URL+"/api/reservations", `{"userId":5,"surprise":true}`)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHandlePaymentStatusRoundTrip(t *testing.T) {
	server, _ := newTestServer(t)

	created := postJSON(t, server.URL+"/api/reservations", createBody())
	var r Reservation
	if err := json.NewDecoder(created.Body).Decode(&r); err != nil {
		t.Fatalf("decode: %v", err)
	}
	created.Body.Close()

	req, err := http.NewRequest(http.MethodPatch,
		fmt.Sprintf("%s/api/reservations/%d/payment-status", server.URL, r.ID),
		strings.NewReader(`{"paymentStatus":"PAID","paymentReference":"EXT-STR-1-abc"}`))
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("X-Event-ID", "evt-http-1")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("patch: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var updated Reservation
	if err := json.NewDecoder(resp.Body).Decode(&updated); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if updated.Status != StatusConfirmed || updated.PaymentStatus != PaymentConfirmed {
		t.Fatalf("expected CONFIRMED/CONFIRMED, got %s/%s", updated.Status, updated.PaymentStatus)
	}

	pending, err := http.Get(fmt.Sprintf("%s/api/reservations/%d/pending-amount", server.URL, r.ID))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer pending.Body.Close()
	var amount struct {
		ReservationID int64  `json:"reservationId"`
		Amount        string `json:"amount"`
	}
	if err := json.NewDecoder(pending.Body).Decode(&amount); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if amount.Amount != "0" {
		t.Fatalf("expected zero pending, got %q", amount.Amount)
	}
}

func TestHandleMyReservations(t *testing.T) {
	server, _ := newTestServer(t)

	created := postJSON(t, server.URL+"/api/reservations", createBody())
	created.Body.Close()

	req, err := http.NewRequest(http.MethodGet, server.URL+"/api/reservations/my-reservations", nil)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("X-User-Email", "dana@example.com")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var mine []Reservation
	if err := json.NewDecoder(resp.Body).Decode(&mine); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(mine) != 1 {
		t.Fatalf("expected 1 reservation, got %d", len(mine))
	}

	// Missing identity header is a caller error.
	anon, err := http.Get(server.URL + "/api/reservations/my-reservations")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer anon.Body.Close()
	if anon.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", anon.StatusCode)
	}
}

func TestHandleConflictsQuery(t *testing.T) {
	server, _ := newTestServer(t)

	created := postJSON(t, server.URL+"/api/reservations", createBody())
	created.Body.Close()

	start := testBase.Add(23 * time.Hour).UTC().Format(time.RFC3339)
	end := testBase.Add(27 * time.Hour).UTC().Format(time.RFC3339)
	resp, err := http.Get(fmt.Sprintf("%s/api/reservations/conflicts?courtId=1&startTime=%s&endTime=%s",
		server.URL, start, end))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	var result struct {
		HasConflict bool `json:"hasConflict"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !result.HasConflict {
		t.Fatal("expected a conflict")
	}

	details, err := http.Get(fmt.Sprintf("%s/api/reservations/conflicts/details?courtId=1&startTime=%s&endTime=%s",
		server.URL, start, end))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer details.Body.Close()
	var infos []ConflictInfo
	if err := json.NewDecoder(details.Body).Decode(&infos); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(infos))
	}

	// Inverted window bounces before touching the database.
	bad, err := http.Get(fmt.Sprintf("%s/api/reservations/conflicts?courtId=1&startTime=%s&endTime=%s",
		server.URL, end, start))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer bad.Body.Close()
	if bad.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", bad.StatusCode)
	}
}
