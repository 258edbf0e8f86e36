// Package service runs inbound bank notifications through normalization,
// categorization, duplicate detection and persistence.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/punchamoorthee/bankfeed/internal/domain"
	"github.com/punchamoorthee/bankfeed/internal/extractor"
	"github.com/punchamoorthee/bankfeed/internal/logging"
	"github.com/punchamoorthee/bankfeed/internal/models"
	"github.com/punchamoorthee/bankfeed/internal/normalizer"
	"github.com/sirupsen/logrus"
)

// State is a step of a pipeline run. Runs move strictly forward and end in
// PERSISTED, SKIPPED_DUPLICATE, REJECTED or FAILED.
type State string

const (
	StateReceived         State = "RECEIVED"
	StateNormalized       State = "NORMALIZED"
	StateCategorized      State = "CATEGORIZED"
	StateDuplicateChecked State = "DUPLICATE_CHECKED"
	StatePersisted        State = "PERSISTED"
	StateSkippedDuplicate State = "SKIPPED_DUPLICATE"
	StateRejected         State = "REJECTED"
	StateFailed           State = "FAILED"
)

var (
	pipelineResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "bankfeed_pipeline_results_total",
		Help: "Pipeline runs by origin and terminal state",
	}, []string{"origin", "state"})

	pipelineDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "bankfeed_pipeline_duration_seconds",
		Help:    "Latency of pipeline runs, extraction included",
		Buckets: []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30},
	}, []string{"origin"})
)

// Result is the caller-facing outcome of one run.
type Result struct {
	State       State
	Transaction *domain.Transaction
	Reason      string
}

// Categorizer assigns a category; it never fails.
type Categorizer interface {
	Categorize(ctx context.Context, tx domain.Transaction) domain.Match
}

// TransactionStore is the persistence the pipeline needs.
type TransactionStore interface {
	TransactionFinder
	InsertTransaction(ctx context.Context, tx domain.Transaction) (domain.Transaction, error)
}

type Pipeline struct {
	normalizer  *normalizer.Normalizer
	categorizer Categorizer
	duplicates  *DuplicateChecker
	store       TransactionStore
	extractor   extractor.Extractor
	log         logrus.FieldLogger
}

// NewPipeline wires the pipeline. ex may be nil, in which case email input is rejected.
func NewPipeline(n *normalizer.Normalizer, c Categorizer, store TransactionStore, ex extractor.Extractor, log logrus.FieldLogger) *Pipeline {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Pipeline{
		normalizer:  n,
		categorizer: c,
		duplicates:  NewDuplicateChecker(store),
		store:       store,
		extractor:   ex,
		log:         log.WithField(logging.FieldComponent, "pipeline"),
	}
}

// Process runs one inbound payload to a terminal state.
//
// For webhook origin raw is the gateway JSON; for email origin it is an
// EmailMessage JSON. The returned error is nil for PERSISTED and
// SKIPPED_DUPLICATE. REJECTED wraps domain.ErrMalformedPayload and nothing was
// written. FAILED either wraps domain.ErrStoreRead (nothing written) or is a
// *domain.StoreWriteError (the write may have happened).
func (p *Pipeline) Process(ctx context.Context, raw []byte, origin domain.Origin) (Result, error) {
	timer := prometheus.NewTimer(pipelineDuration.WithLabelValues(string(origin)))
	defer timer.ObserveDuration()

	log := p.log.WithField(logging.FieldOrigin, origin)

	tx, err := p.normalize(ctx, raw, origin)
	if err != nil {
		return p.finish(log, origin, Result{State: StateRejected, Reason: err.Error()}, err)
	}

	match := p.categorizer.Categorize(ctx, tx)
	tx.Category = match.Category
	tx.DisplayContent = match.DisplayContent

	duplicate, err := p.duplicates.IsDuplicate(ctx, tx)
	if err != nil {
		return p.finish(log, origin, Result{State: StateFailed, Transaction: &tx, Reason: err.Error()}, err)
	}
	if duplicate {
		return p.finish(log, origin, Result{State: StateSkippedDuplicate, Transaction: &tx, Reason: "transaction already exists"}, nil)
	}

	// The insert is the only non-idempotent step; a caller timeout must not cut it short.
	saved, err := p.store.InsertTransaction(context.WithoutCancel(ctx), tx)
	if errors.Is(err, domain.ErrDuplicateKey) {
		return p.finish(log, origin, Result{State: StateSkippedDuplicate, Transaction: &tx, Reason: "transaction already exists"}, nil)
	}
	if err != nil {
		writeErr := &domain.StoreWriteError{Err: err}
		return p.finish(log, origin, Result{State: StateFailed, Transaction: &tx, Reason: writeErr.Error()}, writeErr)
	}
	return p.finish(log, origin, Result{State: StatePersisted, Transaction: &saved}, nil)
}

func (p *Pipeline) normalize(ctx context.Context, raw []byte, origin domain.Origin) (domain.Transaction, error) {
	switch origin {
	case domain.OriginWebhook:
		return p.normalizer.Normalize(raw, origin)
	case domain.OriginEmail:
		record, err := p.extract(ctx, raw)
		if err != nil {
			return domain.Transaction{}, err
		}
		return p.normalizer.FromRecord(record, origin)
	default:
		return domain.Transaction{}, &domain.PayloadError{Reason: "unknown origin " + string(origin)}
	}
}

// extract reports every failure as a malformed payload.
func (p *Pipeline) extract(ctx context.Context, raw []byte) (models.WebhookPayload, error) {
	var msg models.EmailMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return models.WebhookPayload{}, &domain.PayloadError{Reason: "invalid email JSON", Err: err}
	}
	if strings.TrimSpace(msg.Body) == "" {
		return models.WebhookPayload{}, &domain.PayloadError{Field: "body", Reason: "required"}
	}
	if p.extractor == nil {
		return models.WebhookPayload{}, &domain.PayloadError{Reason: "email extraction is not configured", Err: domain.ErrExtraction}
	}

	record, err := p.extractor.Extract(ctx, msg)
	if err != nil {
		return models.WebhookPayload{}, &domain.PayloadError{Reason: err.Error(), Err: err}
	}
	return record, nil
}

func (p *Pipeline) finish(log logrus.FieldLogger, origin domain.Origin, res Result, err error) (Result, error) {
	pipelineResults.WithLabelValues(string(origin), string(res.State)).Inc()

	entry := log.WithField(logging.FieldState, res.State)
	if res.Transaction != nil {
		entry = entry.WithFields(logrus.Fields{
			logging.FieldAccount: res.Transaction.Account,
			logging.FieldAmount:  res.Transaction.TransferAmount,
		})
		if res.Transaction.Category != nil {
			entry = entry.WithField(logging.FieldCategory, *res.Transaction.Category)
		}
		if res.Transaction.ID != 0 {
			entry = entry.WithField(logging.FieldTransactionID, res.Transaction.ID)
		}
	}

	switch res.State {
	case StatePersisted:
		entry.Info("Transaction saved")
	case StateSkippedDuplicate:
		entry.Info("Duplicate transaction skipped")
	case StateRejected:
		entry.WithField(logging.FieldReason, res.Reason).Warn("Payload rejected")
	default:
		entry.WithError(err).Error("Transaction processing failed")
	}
	return res, err
}
