// Package usaspending queries the USAspending award search endpoint using gocolly.
package usaspending

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/xeipuuv/gojsonschema"
	"go.uber.org/zap"

	"github.com/JakeFAU/govcontracts-loader/internal/award"
	"github.com/JakeFAU/govcontracts-loader/internal/policy/ratelimit"
)

// DefaultEndpoint is the public spending_by_award search URL.
const DefaultEndpoint = "https://api.usaspending.gov/api/v2/search/spending_by_award/"

// Defaults applied when Config leaves a field empty.
const (
	DefaultStartDate = "2020-01-01"
	DefaultTimeout   = 60 * time.Second
	sortField        = "Award Amount"
	sortOrder        = "desc"
)

// DefaultAwardTypeCodes restricts results to contract award types.
var DefaultAwardTypeCodes = []string{"A", "B", "C", "D"}

// responseSchema accepts any object whose optional "results" member is an array of objects.
const responseSchema = `{
  "type": "object",
  "properties": {
    "results": {
      "type": "array",
      "items": {"type": "object"}
    }
  }
}`

// Config controls query construction and the HTTP collector.
type Config struct {
	Endpoint       string
	UserAgent      string
	Timeout        time.Duration
	StartDate      string
	AwardTypeCodes []string
	// RequestsPerSecond paces queries against the endpoint host. Zero disables pacing.
	RequestsPerSecond float64
}

// Clock supplies the end of the query time window.
type Clock interface {
	Now() time.Time
}

// Fetcher issues one bounded search per keyword.
type Fetcher struct {
	cfg           Config
	clock         Clock
	logger        *zap.Logger
	transport     http.RoundTripper
	baseCollector *colly.Collector
	schema        *gojsonschema.Schema
	limiter       *ratelimit.Limiter
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Fetcher.
func New(cfg Config, clock Clock, logger *zap.Logger) (*Fetcher, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.StartDate == "" {
		cfg.StartDate = DefaultStartDate
	}
	if len(cfg.AwardTypeCodes) == 0 {
		cfg.AwardTypeCodes = append([]string(nil), DefaultAwardTypeCodes...)
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(responseSchema))
	if err != nil {
		return nil, fmt.Errorf("compile response schema: %w", err)
	}

	c := colly.NewCollector(colly.Async(false))
	transport := newHTTPTransport()
	c.WithTransport(transport)

	return &Fetcher{
		cfg:           cfg,
		clock:         clock,
		logger:        logger,
		transport:     transport,
		baseCollector: c,
		schema:        schema,
		limiter:       ratelimit.New(ratelimit.Config{RPS: cfg.RequestsPerSecond, Burst: 1}),
	}, nil
}

// Fetch runs the query for keyword. It never returns an error: failures are
// logged and carried in the result so the caller can skip the keyword.
func (f *Fetcher) Fetch(ctx context.Context, keyword string, limit int) award.FetchResult {
	result := award.FetchResult{Keyword: keyword}

	body, err := json.Marshal(f.BuildQuery(keyword, limit))
	if err != nil {
		result.Err = &award.FetchError{Keyword: keyword, Kind: award.FailureMalformed, Err: fmt.Errorf("encode query: %w", err)}
		f.logFailure(result.Err)
		return result
	}

	if err := f.limiter.Wait(ctx, f.cfg.Endpoint); err != nil {
		result.Err = classify(keyword, 0, err)
		f.logFailure(result.Err)
		return result
	}

	var resp response
	collector := f.buildCollector(ctx, &resp)
	if err := collector.PostRaw(f.cfg.Endpoint, body); err != nil && resp.err == nil {
		resp.err = err
	}
	if resp.err != nil {
		result.Err = classify(keyword, resp.status, resp.err)
		f.logFailure(result.Err)
		return result
	}

	awards, err := f.decode(resp.body)
	if err != nil {
		result.Err = &award.FetchError{Keyword: keyword, Kind: award.FailureMalformed, Err: err}
		f.logFailure(result.Err)
		return result
	}
	result.Awards = awards
	f.logger.Debug("keyword fetched",
		zap.String("keyword", keyword),
		zap.Int("results", len(awards)),
		zap.Int("status", resp.status),
	)
	return result
}

type response struct {
	status int
	body   []byte
	err    error
}

func (f *Fetcher) buildCollector(ctx context.Context, resp *response) *colly.Collector {
	collector := f.baseCollector.Clone()
	if f.cfg.UserAgent != "" {
		collector.UserAgent = f.cfg.UserAgent
	}
	collector.AllowURLRevisit = true
	collector.IgnoreRobotsTxt = true
	collector.Context = ctx
	collector.SetRequestTimeout(f.cfg.Timeout)
	baseTransport := f.transport
	if baseTransport == nil {
		baseTransport = newHTTPTransport()
	}
	collector.WithTransport(baseTransport)

	configureCollectorHooks(collector, resp)
	return collector
}

func configureCollectorHooks(hooks collectorHooks, resp *response) {
	hooks.OnRequest(func(r *colly.Request) {
		r.Headers.Set("Content-Type", "application/json")
		r.Headers.Set("Accept", "application/json")
	})

	hooks.OnResponse(func(r *colly.Response) {
		resp.status = r.StatusCode
		resp.body = append([]byte(nil), r.Body...)
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil {
			resp.status = r.StatusCode
		}
		resp.err = err
	})
}

func (f *Fetcher) decode(body []byte) ([]award.Raw, error) {
	result, err := f.schema.Validate(gojsonschema.NewBytesLoader(body))
	if err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return nil, fmt.Errorf("unexpected response shape: %v", errs)
	}

	var doc struct {
		Results []award.Raw `json:"results"`
	}
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return doc.Results, nil
}

func (f *Fetcher) logFailure(err *award.FetchError) {
	f.logger.Error("keyword fetch failed; skipping",
		zap.String("keyword", err.Keyword),
		zap.String("kind", string(err.Kind)),
		zap.Error(err.Err),
	)
}

func classify(keyword string, status int, err error) *award.FetchError {
	var netErr net.Error
	switch {
	case status != 0 && (status < 200 || status > 299):
		return &award.FetchError{Keyword: keyword, Kind: award.FailureStatus, Err: fmt.Errorf("HTTP %d: %w", status, err)}
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr) && netErr.Timeout():
		return &award.FetchError{Keyword: keyword, Kind: award.FailureTimeout, Err: err}
	default:
		return &award.FetchError{Keyword: keyword, Kind: award.FailureNetwork, Err: err}
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
}
