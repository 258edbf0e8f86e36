package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/models"
	"github.com/punchamoorthee/bankfeed/internal/service"
)

const (
	maxBodyBytes = 1 << 20

	defaultRecentLimit = 10
	maxRecentLimit     = 100
)

func (h *Handler) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "bankfeed"})
}

func (h *Handler) SepayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, domain.OriginWebhook)
}

func (h *Handler) EmailWebhookHandler(w http.ResponseWriter, r *http.Request) {
	h.process(w, r, domain.OriginEmail)
}

func (h *Handler) process(w http.ResponseWriter, r *http.Request, origin domain.Origin) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondWithError(w, http.StatusRequestEntityTooLarge, "Request body too large")
			return
		}
		respondWithError(w, http.StatusBadRequest, "Stream read error")
		return
	}
	if len(body) == 0 {
		respondWithError(w, http.StatusBadRequest, "No data provided")
		return
	}

	res, err := h.pipeline.Process(r.Context(), body, origin)
	status, resp := processResponse(res, err)
	if status == http.StatusInternalServerError {
		h.requestLogger(r).WithError(err).WithField(logging.FieldOrigin, origin).Error("Webhook processing failed")
	}
	respondWithJSON(w, status, resp)
}

// processResponse maps a pipeline outcome to its HTTP status and body.
func processResponse(res service.Result, err error) (int, models.ProcessResponse) {
	switch res.State {
	case service.StatePersisted:
		resp := models.ProcessResponse{Success: true, Message: "Transaction saved", Transaction: res.Transaction}
		if res.Transaction != nil {
			resp.Category = res.Transaction.Category
			resp.ContentChanged = res.Transaction.DisplayContent != nil
		}
		return http.StatusCreated, resp

	case service.StateSkippedDuplicate:
		resp := models.ProcessResponse{Success: true, Duplicate: true, Message: "Transaction already exists"}
		if res.Transaction != nil {
			resp.Category = res.Transaction.Category
		}
		return http.StatusOK, resp

	case service.StateRejected:
		return http.StatusBadRequest, models.ProcessResponse{Error: res.Reason}

	default:
		resp := models.ProcessResponse{Error: "Transaction could not be stored"}
		var writeErr *domain.StoreWriteError
		if errors.As(err, &writeErr) {
			resp.MayHaveWritten = writeErr.MayHaveWritten()
		}
		return http.StatusInternalServerError, resp
	}
}

func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	stats, err := h.repo.Stats(r.Context())
	if err != nil {
		h.requestLogger(r).WithError(err).Error("Failed to compute stats")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, stats)
}

func (h *Handler) RecentTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	limit := defaultRecentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxRecentLimit)
	}

	h.list(w, r, domain.TransactionFilter{Limit: limit}, models.TransactionList{})
}

func (h *Handler) TransactionsByAccountHandler(w http.ResponseWriter, r *http.Request) {
	account := mux.Vars(r)["account"]
	h.list(w, r, domain.TransactionFilter{Account: &account}, models.TransactionList{Account: account})
}

func (h *Handler) TransactionsByCategoryHandler(w http.ResponseWriter, r *http.Request) {
	category := mux.Vars(r)["category"]
	h.list(w, r, domain.TransactionFilter{Category: &category}, models.TransactionList{Category: category})
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, f domain.TransactionFilter, out models.TransactionList) {
	txs, err := h.repo.FindTransactions(r.Context(), f)
	if err != nil {
		h.requestLogger(r).WithError(err).Error("Failed to list transactions")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	out.Transactions = txs
	out.Count = len(txs)
	respondWithJSON(w, http.StatusOK, out)
}

func (h *Handler) RefreshRulesHandler(w http.ResponseWriter, r *http.Request) {
	rules, err := h.rules.Refresh(r.Context())
	if err != nil {
		h.requestLogger(r).WithError(err).Error("Rule refresh failed")
		respondWithError(w, http.StatusBadGateway, "Category rules could not be reloaded")
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]int{"rules": len(rules)})
}

// MonthlyReportHandler serves GET /reports/monthly?year=&month=. Without
// parameters it reports on the previous calendar month.
func (h *Handler) MonthlyReportHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rawYear, rawMonth := q.Get("year"), q.Get("month")

	var (
		year  int
		month time.Month
	)
	switch {
	case rawYear == "" && rawMonth == "":
		year, month = h.reports.PreviousMonth()
	case rawYear == "" || rawMonth == "":
		respondWithError(w, http.StatusBadRequest, "year and month must be given together")
		return
	default:
		y, errY := strconv.Atoi(rawYear)
		m, errM := strconv.Atoi(rawMonth)
		if errY != nil || errM != nil {
			respondWithError(w, http.StatusBadRequest, "year and month must be integers")
			return
		}
		year, month = y, time.Month(m)
	}

	report, err := h.reports.Monthly(r.Context(), year, month)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidPeriod) {
			respondWithError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.requestLogger(r).WithError(err).Error("Monthly report failed")
		respondWithError(w, http.StatusInternalServerError, "Internal Server Error")
		return
	}
	respondWithJSON(w, http.StatusOK, report)
}
