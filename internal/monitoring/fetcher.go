package monitoring

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net"
	"net/http"
	"net/url"
	"os"
	"syscall"
	"time"

	"kwatch/internal/providers"
	"kwatch/internal/structures"
)

type FetchErrorKind string

const (
	FetchTimeout           FetchErrorKind = "timeout"
	FetchConnectionRefused FetchErrorKind = "connection_refused"
	FetchTLSError          FetchErrorKind = "tls_error"
	FetchHTTPError         FetchErrorKind = "http_error"
	FetchTooLarge          FetchErrorKind = "too_large"
)

// FetchError is a classified fetch failure. Only Timeout and
// ConnectionRefused are transient and worth retrying.
type FetchError struct {
	Kind       FetchErrorKind
	HTTPStatus int
	Err        error
}

func (e *FetchError) Error() string {
	if e.Kind == FetchHTTPError {
		return fmt.Sprintf("fetch failed: %s (status %d)", e.Kind, e.HTTPStatus)
	}
	if e.Err != nil {
		return fmt.Sprintf("fetch failed: %s: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("fetch failed: %s", e.Kind)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Transient reports whether another attempt could plausibly succeed.
func (e *FetchError) Transient() bool {
	return e.Kind == FetchTimeout || e.Kind == FetchConnectionRefused
}

// Content is a successfully fetched page body.
type Content struct {
	Body       []byte
	HTTPStatus int
	Duration   time.Duration
}

// Fetcher performs a single HTTP GET with a hard timeout, a response size
// cap and a bounded retry loop for transient failures.
type Fetcher struct {
	client       *http.Client
	logger       providers.Logger
	metrics      providers.MetricsProviderInterface
	maxRetries   int
	backoffBase  time.Duration
	maxBodyBytes int64
	userAgent    string
	sleep        func(time.Duration)
}

func NewFetcher(conf *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface) *Fetcher {
	return &Fetcher{
		client: &http.Client{
			Timeout: conf.Fetcher.Timeout,
			Transport: &http.Transport{
				TLSClientConfig:     &tls.Config{MinVersion: tls.VersionTLS12},
				MaxIdleConnsPerHost: 4,
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return http.ErrUseLastResponse
				}
				return nil
			},
		},
		logger:       logger,
		metrics:      metrics,
		maxRetries:   conf.Fetcher.MaxRetries,
		backoffBase:  conf.Fetcher.BackoffBase,
		maxBodyBytes: conf.Fetcher.MaxBodyBytes,
		userAgent:    conf.Fetcher.UserAgent,
		sleep:        time.Sleep,
	}
}

// Fetch retrieves the page at rawURL. Transient failures are retried up to
// maxRetries additional attempts with exponential backoff and ±20% jitter;
// permanent failures return immediately.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Content, *FetchError) {
	backoff := f.backoffBase
	var lastErr *FetchError

	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			f.metrics.IncFetchRetries()
			f.sleep(jitter(backoff))
			backoff *= 2
		}

		content, ferr := f.fetchOnce(ctx, rawURL)
		if ferr == nil {
			f.metrics.ObserveFetchDuration(content.Duration)
			return content, nil
		}

		lastErr = ferr
		if !ferr.Transient() {
			return nil, ferr
		}
		f.logger.Debugf(providers.TypeCheck, "transient fetch failure for %s (attempt %d/%d): %s",
			rawURL, attempt+1, f.maxRetries+1, ferr.Kind)

		if ctx.Err() != nil {
			return nil, lastErr
		}
	}
	return nil, lastErr
}

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Content, *FetchError) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, &FetchError{Kind: FetchHTTPError, Err: err}
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	start := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, &FetchError{Kind: FetchHTTPError, HTTPStatus: resp.StatusCode}
	}

	// Read one byte past the cap to distinguish "exactly at the limit"
	// from "over it".
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodyBytes+1))
	if err != nil {
		return nil, classifyTransportError(err)
	}
	if int64(len(body)) > f.maxBodyBytes {
		return nil, &FetchError{Kind: FetchTooLarge, HTTPStatus: resp.StatusCode}
	}

	return &Content{
		Body:       body,
		HTTPStatus: resp.StatusCode,
		Duration:   time.Since(start),
	}, nil
}

func classifyTransportError(err error) *FetchError {
	var tlsRecordErr tls.RecordHeaderError
	var certErr *tls.CertificateVerificationError
	var netErr net.Error

	switch {
	case errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err):
		return &FetchError{Kind: FetchTimeout, Err: err}
	case errors.As(err, &netErr) && netErr.Timeout():
		return &FetchError{Kind: FetchTimeout, Err: err}
	case errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET):
		return &FetchError{Kind: FetchConnectionRefused, Err: err}
	case errors.As(err, &tlsRecordErr) || errors.As(err, &certErr):
		return &FetchError{Kind: FetchTLSError, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, Err: err}
	}
	// DNS failures, unreachable hosts and the rest of the dial family are
	// treated like refused connections: transient from our point of view.
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return &FetchError{Kind: FetchConnectionRefused, Err: err}
	}
	return &FetchError{Kind: FetchConnectionRefused, Err: err}
}

// jitter spreads a backoff delay by ±20% so synchronized workers do not
// hammer a recovering host in lockstep.
func jitter(d time.Duration) time.Duration {
	delta := int64(float64(d) * 0.2)
	if delta <= 0 {
		return d
	}
	return time.Duration(int64(d) - delta + rand.Int63n(2*delta))
}
