/*
Package remote is the HTTP client for the cooperative ledger server.

PURPOSE:
  Implements ledger.Remote over the server's REST API. The client's main
  job besides transport is rebuilding the error taxonomy from HTTP status
  codes, because the reconciliation service routes on error kind:

    transport failure, 5xx  -> NetworkError  (mutation gets queued)
    409                     -> ErrDuplicateNaturalKey (replay: already applied)
    404                     -> not-found sentinel for the operation
    422                     -> SchemaError   (fatal, never retried)
    400                     -> validation, surfaced verbatim

  Wire types are shared with the server (package api), so the two sides
  cannot drift apart.

SEE ALSO:
  - api/handlers.go: The server side of this contract
  - ledger/remote.go: The interface this package implements
*/
package remote

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/coopstack/farm-ledger/api"
	"github.com/coopstack/farm-ledger/ledger"
)

// Client is a resty-backed implementation of ledger.Remote.
type Client struct {
	httpClient *resty.Client
	log        *zap.Logger
}

// Option customizes the client.
type Option func(*Client)

// WithTimeout overrides the default request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.httpClient.SetTimeout(d) }
}

// WithLogger attaches a logger for request diagnostics.
func WithLogger(log *zap.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New builds a ledger client for the given server base URL.
func New(baseURL string, opts ...Option) *Client {
	restyClient := resty.New()
	restyClient.
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetTimeout(15 * time.Second)

	c := &Client{httpClient: restyClient, log: zap.NewNop()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ ledger.Remote = (*Client)(nil)

// =============================================================================
// STATISTICS
// =============================================================================

func (c *Client) UpsertStatistics(ctx context.Context, recs []ledger.StatisticRecord) ([]ledger.StatisticRecord, error) {
	const op = "upsert statistics"

	dtos := make([]api.StatisticDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, api.ToStatisticDTO(rec))
	}

	var out []api.StatisticDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(dtos).
		SetResult(&out).
		SetError(apiErr).
		Post("/api/statistics")
	if err != nil {
		return nil, &ledger.NetworkError{Op: op, Cause: err}
	}
	if err := c.mapStatus(op, resp, apiErr, ledger.ErrStatisticNotFound); err != nil {
		return nil, err
	}

	stored := make([]ledger.StatisticRecord, 0, len(out))
	for _, dto := range out {
		rec, err := api.FromStatisticDTO(dto)
		if err != nil {
			return nil, &ledger.SchemaError{Op: op, Detail: err.Error()}
		}
		stored = append(stored, rec)
	}
	return stored, nil
}

func (c *Client) UpdateStatistic(ctx context.Context, rec ledger.StatisticRecord) (ledger.StatisticRecord, error) {
	const op = "update statistic"

	var out api.StatisticDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(api.ToStatisticDTO(rec)).
		SetResult(&out).
		SetError(apiErr).
		Put("/api/statistics/" + string(rec.ID))
	if err != nil {
		return ledger.StatisticRecord{}, &ledger.NetworkError{Op: op, Cause: err}
	}
	if err := c.mapStatus(op, resp, apiErr, ledger.ErrStatisticNotFound); err != nil {
		return ledger.StatisticRecord{}, err
	}

	stored, err := api.FromStatisticDTO(out)
	if err != nil {
		return ledger.StatisticRecord{}, &ledger.SchemaError{Op: op, Detail: err.Error()}
	}
	return stored, nil
}

func (c *Client) DeleteStatistic(ctx context.Context, id ledger.StatisticID) error {
	const op = "delete statistic"

	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetError(apiErr).
		Delete("/api/statistics/" + string(id))
	if err != nil {
		return &ledger.NetworkError{Op: op, Cause: err}
	}
	return c.mapStatus(op, resp, apiErr, ledger.ErrStatisticNotFound)
}

// =============================================================================
// INVOICES
// =============================================================================

func (c *Client) InsertInvoices(ctx context.Context, recs []ledger.InvoiceRecord) ([]ledger.InvoiceRecord, error) {
	const op = "insert invoices"

	dtos := make([]api.InvoiceDTO, 0, len(recs))
	for _, rec := range recs {
		dtos = append(dtos, api.ToInvoiceDTO(rec))
	}

	var out []api.InvoiceDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(dtos).
		SetResult(&out).
		SetError(apiErr).
		Post("/api/invoices")
	if err != nil {
		return nil, &ledger.NetworkError{Op: op, Cause: err}
	}
	if err := c.mapStatus(op, resp, apiErr, ledger.ErrInvoiceNotFound); err != nil {
		return nil, err
	}

	stored := make([]ledger.InvoiceRecord, 0, len(out))
	for _, dto := range out {
		rec, err := api.FromInvoiceDTO(dto)
		if err != nil {
			return nil, &ledger.SchemaError{Op: op, Detail: err.Error()}
		}
		stored = append(stored, rec)
	}
	return stored, nil
}

func (c *Client) UpdateInvoice(ctx context.Context, rec ledger.InvoiceRecord) (ledger.InvoiceRecord, error) {
	const op = "update invoice"

	var out api.InvoiceDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(api.ToInvoiceDTO(rec)).
		SetResult(&out).
		SetError(apiErr).
		Put("/api/invoices/" + string(rec.ID))
	if err != nil {
		return ledger.InvoiceRecord{}, &ledger.NetworkError{Op: op, Cause: err}
	}
	if err := c.mapStatus(op, resp, apiErr, ledger.ErrInvoiceNotFound); err != nil {
		return ledger.InvoiceRecord{}, err
	}

	stored, err := api.FromInvoiceDTO(out)
	if err != nil {
		return ledger.InvoiceRecord{}, &ledger.SchemaError{Op: op, Detail: err.Error()}
	}
	return stored, nil
}

func (c *Client) DeleteInvoice(ctx context.Context, id ledger.InvoiceID) error {
	const op = "delete invoice"

	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetError(apiErr).
		Delete("/api/invoices/" + string(id))
	if err != nil {
		return &ledger.NetworkError{Op: op, Cause: err}
	}
	return c.mapStatus(op, resp, apiErr, ledger.ErrInvoiceNotFound)
}

// =============================================================================
// READS
// =============================================================================

func (c *Client) Fetch(ctx context.Context, filter ledger.FetchFilter) (ledger.FetchResult, error) {
	const op = "fetch ledger"

	var out api.LedgerDTO
	apiErr := new(api.ErrorResponse)
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"farm": string(filter.Farm),
			"from": filter.From.String(),
			"to":   filter.To.String(),
		}).
		SetResult(&out).
		SetError(apiErr).
		Get("/api/ledger")
	if err != nil {
		return ledger.FetchResult{}, &ledger.NetworkError{Op: op, Cause: err}
	}
	if err := c.mapStatus(op, resp, apiErr, ledger.ErrStatisticNotFound); err != nil {
		return ledger.FetchResult{}, err
	}

	result, err := api.FromLedgerDTO(out)
	if err != nil {
		return ledger.FetchResult{}, &ledger.SchemaError{Op: op, Detail: err.Error()}
	}
	return result, nil
}

// Ping probes the server's liveness endpoint. Used by the connectivity
// watcher, never by the reconciliation flow.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.httpClient.R().SetContext(ctx).Get("/api/health")
	if err != nil {
		return &ledger.NetworkError{Op: "ping", Cause: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &ledger.NetworkError{Op: "ping", Cause: fmt.Errorf("server status %d", resp.StatusCode())}
	}
	return nil
}

// =============================================================================
// STATUS MAPPING
// =============================================================================

// mapStatus rebuilds the engine's error taxonomy from the response status.
func (c *Client) mapStatus(op string, resp *resty.Response, apiErr *api.ErrorResponse, notFound error) error {
	status := resp.StatusCode()
	if status < http.StatusBadRequest {
		return nil
	}

	detail := apiErr.Error
	if apiErr.Details != "" {
		detail = detail + ": " + apiErr.Details
	}
	c.log.Warn("ledger server rejected request",
		zap.String("op", op),
		zap.Int("status", status),
		zap.String("detail", detail))

	switch {
	case status == http.StatusConflict:
		return fmt.Errorf("%s: %s: %w", op, detail, ledger.ErrDuplicateNaturalKey)
	case status == http.StatusNotFound:
		return fmt.Errorf("%s: %s: %w", op, detail, notFound)
	case status == http.StatusUnprocessableEntity:
		return &ledger.SchemaError{Op: op, Detail: detail}
	case status >= http.StatusInternalServerError:
		return &ledger.NetworkError{Op: op, Cause: fmt.Errorf("server status %d: %s", status, detail)}
	default:
		return fmt.Errorf("%s rejected: %s", op, detail)
	}
}
