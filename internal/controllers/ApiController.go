package controllers

import (
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"

	"kwatch/internal/models"
	"kwatch/internal/monitoring/interfaces"
	"kwatch/internal/providers"
	"kwatch/internal/services"
	"kwatch/internal/storage"
)

const maxRequestBodySize = 1 << 20 // 1 MB

var timeNow = time.Now

type ApiController struct {
	logger      providers.Logger
	monitors    services.MonitorServiceInterface
	allocations services.AllocationServiceInterface
	scheduler   interfaces.SchedulerInterface
	cache       providers.CacheProviderInterface
}

func NewApiController(logger providers.Logger, monitors services.MonitorServiceInterface,
	allocations services.AllocationServiceInterface, scheduler interfaces.SchedulerInterface,
	cache providers.CacheProviderInterface) *ApiController {
	return &ApiController{
		logger:      logger,
		monitors:    monitors,
		allocations: allocations,
		scheduler:   scheduler,
		cache:       cache,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	gson, err := json.Marshal(v)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(gson)
}

func (ac *ApiController) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		http.Error(w, "Not Found", http.StatusNotFound)
	case errors.Is(err, storage.ErrClaimed) || errors.Is(err, storage.ErrDuplicateKey):
		http.Error(w, "Conflict", http.StatusConflict)
	default:
		ac.logger.Errorf(providers.TypeHTTP, "Request failed: %s", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

func (ac *ApiController) serveFromCacheOrCompute(w http.ResponseWriter, cacheKey string, compute func() (any, error)) {
	if data, ok := ac.cache.Get(cacheKey); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
		return
	}

	result, err := compute()
	if err != nil {
		ac.writeError(w, err)
		return
	}

	gson, err := json.Marshal(result)
	if err != nil {
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ac.cache.Set(cacheKey, gson)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(gson)
}

func (ac *ApiController) CreateMonitor(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var payload models.Monitor
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	m, err := ac.monitors.Create(r.Context(), &payload)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			ac.writeError(w, err)
			return
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

func (ac *ApiController) ListMonitors(w http.ResponseWriter, r *http.Request) {
	monitors, err := ac.monitors.List(r.Context(), r.URL.Query().Get("owner"))
	if err != nil {
		ac.writeError(w, err)
		return
	}
	if monitors == nil {
		monitors = []*models.Monitor{}
	}
	writeJSON(w, http.StatusOK, monitors)
}

func (ac *ApiController) GetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := ac.monitors.Get(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		ac.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (ac *ApiController) ResetMonitor(w http.ResponseWriter, r *http.Request) {
	m, err := ac.monitors.Reset(r.Context(), r.URL.Query().Get("id"))
	if err != nil {
		ac.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (ac *ApiController) GetResults(w http.ResponseWriter, r *http.Request) {
	monitorID := r.URL.Query().Get("monitor")
	if monitorID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	results, err := ac.monitors.Results(r.Context(), monitorID, 0)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	if results == nil {
		results = []*models.CheckResult{}
	}
	writeJSON(w, http.StatusOK, results)
}

func (ac *ApiController) GetNotifications(w http.ResponseWriter, r *http.Request) {
	monitorID := r.URL.Query().Get("monitor")
	if monitorID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	notifications, err := ac.monitors.Notifications(r.Context(), monitorID)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*models.Notification{}
	}
	writeJSON(w, http.StatusOK, notifications)
}

// RunCycle triggers a check cycle out of schedule.
func (ac *ApiController) RunCycle(w http.ResponseWriter, r *http.Request) {
	report, err := ac.scheduler.RunCycle(r.Context(), timeNow())
	if err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// CheckNow runs one monitor immediately, regardless of its due time.
func (ac *ApiController) CheckNow(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("id")
	if id == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if err := ac.scheduler.CheckNow(r.Context(), id); err != nil {
		ac.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type confirmedPaymentRequest struct {
	PaymentID   string `json:"payment_id"`
	AmountCents int64  `json:"amount_cents"`
}

// ConfirmPayment ingests a confirmed-payment event and returns the ledger
// entries. Replaying the same event returns the original allocation.
func (ac *ApiController) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var payload confirmedPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	if payload.PaymentID == "" || payload.AmountCents < 1 {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	entries, err := ac.allocations.Allocate(r.Context(), payload.PaymentID, payload.AmountCents)
	if err != nil {
		ac.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entries)
}

func (ac *ApiController) GetAllocations(w http.ResponseWriter, r *http.Request) {
	paymentID := r.URL.Query().Get("payment")
	if paymentID == "" {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	// Allocations are immutable once written, safe to cache.
	ac.serveFromCacheOrCompute(w, "alloc:"+paymentID, func() (any, error) {
		entries, err := ac.allocations.GetAllocations(r.Context(), paymentID)
		if err != nil {
			return nil, err
		}
		if entries == nil {
			entries = []*models.AllocationEntry{}
		}
		return entries, nil
	})
}
