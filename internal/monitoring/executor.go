package monitoring

import (
	"context"
	"errors"
	"time"

	json "github.com/goccy/go-json"

	"kwatch/internal/models"
	"kwatch/internal/providers"
	"kwatch/internal/services"
	"kwatch/internal/storage"
	"kwatch/internal/structures"
)

// cachedPage is the cache envelope for a fetched body, letting several
// monitors that watch the same URL share one fetch per cycle.
type cachedPage struct {
	Status int    `json:"s"`
	Body   []byte `json:"b"`
}

// CheckExecutor runs one monitor check end to end: fetch, match, persist,
// notify. Exactly one CheckResult is produced per run. All fetch and match
// failures are absorbed into the result's outcome; only a persistence
// failure is surfaced to the caller.
type CheckExecutor struct {
	store            storage.Store
	fetcher          *Fetcher
	matcher          *KeywordMatcher
	snapshots        *SnapshotStore
	dispatcher       services.DispatcherInterface
	cache            providers.CacheProviderInterface
	logger           providers.Logger
	metrics          providers.MetricsProviderInterface
	failureThreshold int
}

func NewCheckExecutor(conf *structures.Config, store storage.Store, fetcher *Fetcher,
	matcher *KeywordMatcher, snapshots *SnapshotStore, dispatcher services.DispatcherInterface,
	cache providers.CacheProviderInterface, logger providers.Logger,
	metrics providers.MetricsProviderInterface) *CheckExecutor {
	return &CheckExecutor{
		store:            store,
		fetcher:          fetcher,
		matcher:          matcher,
		snapshots:        snapshots,
		dispatcher:       dispatcher,
		cache:            cache,
		logger:           logger,
		metrics:          metrics,
		failureThreshold: conf.Scheduler.FailureThreshold,
	}
}

// Run checks a claimed monitor. The returned error is non-nil only for
// persistence failures; the claim is then deliberately left to expire so
// the monitor is retried next cycle.
func (ce *CheckExecutor) Run(ctx context.Context, monitor *models.Monitor) (models.CheckOutcome, error) {
	start := time.Now()
	result := &models.CheckResult{
		ID:         models.NewID("chk"),
		MonitorID:  monitor.ID,
		ExecutedAt: start.UTC(),
	}

	body, httpStatus, ferr := ce.fetchPage(ctx, monitor.URL)
	if ferr != nil {
		return ce.recordFetchFailure(ctx, monitor, result, start, ferr)
	}
	result.HTTPStatus = &httpStatus

	match, err := ce.matcher.Match(body, monitor.Keyword)
	if errors.Is(err, ErrUnparsableContent) {
		result.Outcome = models.OutcomeParseFailed
		result.ErrorDetail = err.Error()
		result.DurationMs = time.Since(start).Milliseconds()
		patch := &storage.MonitorPatch{
			LastCheckedAt: result.ExecutedAt,
			Status:        monitor.Status,
			ClaimedUntil:  monitor.ClaimedUntil,
		}
		return ce.persist(ctx, result, patch)
	}

	result.MatchCount = match.Count
	result.PageTitle = match.PageTitle
	result.PageExcerpt = match.Excerpt
	result.DurationMs = time.Since(start).Milliseconds()

	// A check result never changes status by itself. Paused stays paused
	// and Error stays until an explicit reset, even on a manual trigger.
	patch := &storage.MonitorPatch{
		LastCheckedAt: result.ExecutedAt,
		Status:        monitor.Status,
		ClaimedUntil:  monitor.ClaimedUntil,
	}
	if match.Count > 0 {
		result.Outcome = models.OutcomeMatchFound
		patch.LastFoundAt = &result.ExecutedAt
	} else {
		result.Outcome = models.OutcomeNoMatch
	}

	outcome, err := ce.persist(ctx, result, patch)
	if err != nil {
		return outcome, err
	}

	if result.Outcome == models.OutcomeMatchFound {
		ce.archiveSnapshot(monitor, result, body)
		ce.dispatcher.Notify(ctx, monitor, result)
	}
	return outcome, nil
}

func (ce *CheckExecutor) fetchPage(ctx context.Context, url string) ([]byte, int, *FetchError) {
	key := "page:" + url
	if data, ok := ce.cache.Get(key); ok {
		var page cachedPage
		if err := json.Unmarshal(data, &page); err == nil {
			return page.Body, page.Status, nil
		}
	}

	content, ferr := ce.fetcher.Fetch(ctx, url)
	if ferr != nil {
		return nil, ferr.HTTPStatus, ferr
	}

	if data, err := json.Marshal(cachedPage{Status: content.HTTPStatus, Body: content.Body}); err == nil {
		ce.cache.Set(key, data)
	}
	return content.Body, content.HTTPStatus, nil
}

func (ce *CheckExecutor) recordFetchFailure(ctx context.Context, monitor *models.Monitor,
	result *models.CheckResult, start time.Time, ferr *FetchError) (models.CheckOutcome, error) {
	result.Outcome = models.OutcomeFetchFailed
	result.ErrorDetail = ferr.Error()
	result.DurationMs = time.Since(start).Milliseconds()
	if ferr.HTTPStatus != 0 {
		status := ferr.HTTPStatus
		result.HTTPStatus = &status
	}

	fails := monitor.ConsecutiveFails + 1
	patch := &storage.MonitorPatch{
		LastCheckedAt:    result.ExecutedAt,
		ConsecutiveFails: fails,
		Status:           monitor.Status,
		ClaimedUntil:     monitor.ClaimedUntil,
	}
	if monitor.Status == models.MonitorActive && fails >= ce.failureThreshold {
		patch.Status = models.MonitorError
		ce.logger.Warnf(providers.TypeCheck, "Monitor %s failed %d consecutive checks, needs manual reset",
			monitor.ID, fails)
	}
	return ce.persist(ctx, result, patch)
}

func (ce *CheckExecutor) persist(ctx context.Context, result *models.CheckResult, patch *storage.MonitorPatch) (models.CheckOutcome, error) {
	if err := ce.store.RecordCheck(ctx, result, patch); err != nil {
		// Fatal for this run: the claim is left to expire and the
		// monitor's timestamps stay untouched.
		ce.logger.Errorf(providers.TypeCheck, "Failed to persist check result for monitor %s: %s",
			result.MonitorID, err)
		return result.Outcome, err
	}
	ce.metrics.IncChecksTotal(string(result.Outcome))
	return result.Outcome, nil
}

func (ce *CheckExecutor) archiveSnapshot(monitor *models.Monitor, result *models.CheckResult, body []byte) {
	if ce.snapshots == nil {
		return
	}
	err := ce.snapshots.Save(&Snapshot{
		MonitorID:     monitor.ID,
		CheckResultID: result.ID,
		CapturedAt:    result.ExecutedAt,
		Body:          body,
	})
	if err != nil {
		// Snapshot archival is best effort: the check itself already
		// succeeded and was persisted.
		ce.logger.Warnf(providers.TypeCheck, "Failed to archive snapshot for %s: %s", result.ID, err)
	}
}
