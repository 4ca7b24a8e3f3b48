/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the wire contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

  The remote client package reuses these types, so server and client can
  never drift apart on the wire format.

NAMING CONVENTION:
  - *DTO: Types carried over the wire
  - *Request: Request body wrappers
  - ErrorResponse: The single error envelope

WIRE FORMATS:
  Dates:   YYYY-MM-DD
  Weights: decimal strings ("12.5"), never floats
  Times:   RFC3339

SEE ALSO:
  - handlers.go: Uses these types
  - remote/client.go: The client side of the same contract
*/
package api

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/coopstack/farm-ledger/ledger"
)

// =============================================================================
// WIRE TYPES
// =============================================================================

// QuantityDTO is a carton count with its weight, weight as a decimal string.
type QuantityDTO struct {
	Cartons int64  `json:"cartons"`
	Weight  string `json:"weight"`
}

// StatisticDTO represents a daily production statistic on the wire.
type StatisticDTO struct {
	ID      string `json:"id,omitempty"`
	Farm    string `json:"farm"`
	Date    string `json:"date"`
	Product string `json:"product"`

	PreviousBalance  QuantityDTO `json:"previous_balance"`
	Production       QuantityDTO `json:"production"`
	UsageDisplay     QuantityDTO `json:"usage_display"`
	CurrentInventory QuantityDTO `json:"current_inventory"`
	Separation       int64       `json:"separation,omitempty"`

	Creator   string `json:"creator,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// InvoiceDTO represents a sales document on the wire.
type InvoiceDTO struct {
	ID      string `json:"id,omitempty"`
	Number  string `json:"number"`
	Farm    string `json:"farm"`
	Date    string `json:"date"`
	Product string `json:"product"`

	TotalCartons int64  `json:"total_cartons"`
	TotalWeight  string `json:"total_weight"`

	IsConverted     bool   `json:"is_converted,omitempty"`
	SourceProduct   string `json:"source_product,omitempty"`
	ConvertedAmount int64  `json:"converted_amount,omitempty"`

	Driver      string `json:"driver,omitempty"`
	Plate       string `json:"plate,omitempty"`
	Description string `json:"description,omitempty"`

	Creator   string `json:"creator,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// LedgerDTO is the combined read of statistics and invoices for a filter.
type LedgerDTO struct {
	Statistics []StatisticDTO `json:"statistics"`
	Invoices   []InvoiceDTO   `json:"invoices"`
}

// ErrorResponse is the error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DOMAIN <-> WIRE CONVERSION
// =============================================================================

// ToStatisticDTO converts a record to its wire form.
func ToStatisticDTO(rec ledger.StatisticRecord) StatisticDTO {
	return StatisticDTO{
		ID:               string(rec.ID),
		Farm:             string(rec.Farm),
		Date:             rec.Date.String(),
		Product:          string(rec.Product),
		PreviousBalance:  toQuantityDTO(rec.PreviousBalance),
		Production:       toQuantityDTO(rec.Production),
		UsageDisplay:     toQuantityDTO(rec.UsageDisplay),
		CurrentInventory: toQuantityDTO(rec.CurrentInventory),
		Separation:       rec.Separation,
		Creator:          rec.Creator,
		CreatedAt:        formatTime(rec.CreatedAt),
		UpdatedAt:        formatTime(rec.UpdatedAt),
	}
}

// FromStatisticDTO converts a wire statistic back to a record.
func FromStatisticDTO(dto StatisticDTO) (ledger.StatisticRecord, error) {
	date, err := ledger.ParseDateKey(dto.Date)
	if err != nil {
		return ledger.StatisticRecord{}, fmt.Errorf("statistic date: %w", err)
	}
	prev, err := fromQuantityDTO(dto.PreviousBalance)
	if err != nil {
		return ledger.StatisticRecord{}, fmt.Errorf("previous_balance: %w", err)
	}
	prod, err := fromQuantityDTO(dto.Production)
	if err != nil {
		return ledger.StatisticRecord{}, fmt.Errorf("production: %w", err)
	}
	usage, err := fromQuantityDTO(dto.UsageDisplay)
	if err != nil {
		return ledger.StatisticRecord{}, fmt.Errorf("usage_display: %w", err)
	}
	inv, err := fromQuantityDTO(dto.CurrentInventory)
	if err != nil {
		return ledger.StatisticRecord{}, fmt.Errorf("current_inventory: %w", err)
	}

	return ledger.StatisticRecord{
		ID:               ledger.StatisticID(dto.ID),
		Farm:             ledger.FarmID(dto.Farm),
		Date:             date,
		Product:          ledger.ProductID(dto.Product),
		PreviousBalance:  prev,
		Production:       prod,
		UsageDisplay:     usage,
		CurrentInventory: inv,
		Separation:       dto.Separation,
		Creator:          dto.Creator,
		CreatedAt:        parseTime(dto.CreatedAt),
		UpdatedAt:        parseTime(dto.UpdatedAt),
	}, nil
}

// ToInvoiceDTO converts a record to its wire form.
func ToInvoiceDTO(rec ledger.InvoiceRecord) InvoiceDTO {
	return InvoiceDTO{
		ID:              string(rec.ID),
		Number:          rec.Number,
		Farm:            string(rec.Farm),
		Date:            rec.Date.String(),
		Product:         string(rec.Product),
		TotalCartons:    rec.TotalCartons,
		TotalWeight:     rec.TotalWeight.String(),
		IsConverted:     rec.IsConverted,
		SourceProduct:   string(rec.SourceProduct),
		ConvertedAmount: rec.ConvertedAmount,
		Driver:          rec.Driver,
		Plate:           rec.Plate,
		Description:     rec.Description,
		Creator:         rec.Creator,
		CreatedAt:       formatTime(rec.CreatedAt),
		UpdatedAt:       formatTime(rec.UpdatedAt),
	}
}

// FromInvoiceDTO converts a wire invoice back to a record.
func FromInvoiceDTO(dto InvoiceDTO) (ledger.InvoiceRecord, error) {
	date, err := ledger.ParseDateKey(dto.Date)
	if err != nil {
		return ledger.InvoiceRecord{}, fmt.Errorf("invoice date: %w", err)
	}
	weight, err := decimal.NewFromString(dto.TotalWeight)
	if err != nil {
		return ledger.InvoiceRecord{}, fmt.Errorf("total_weight: %w", err)
	}

	return ledger.InvoiceRecord{
		ID:              ledger.InvoiceID(dto.ID),
		Number:          dto.Number,
		Farm:            ledger.FarmID(dto.Farm),
		Date:            date,
		Product:         ledger.ProductID(dto.Product),
		TotalCartons:    dto.TotalCartons,
		TotalWeight:     weight,
		IsConverted:     dto.IsConverted,
		SourceProduct:   ledger.ProductID(dto.SourceProduct),
		ConvertedAmount: dto.ConvertedAmount,
		Driver:          dto.Driver,
		Plate:           dto.Plate,
		Description:     dto.Description,
		Creator:         dto.Creator,
		CreatedAt:       parseTime(dto.CreatedAt),
		UpdatedAt:       parseTime(dto.UpdatedAt),
	}, nil
}

// ToLedgerDTO converts a fetch result to its wire form.
func ToLedgerDTO(res ledger.FetchResult) LedgerDTO {
	out := LedgerDTO{
		Statistics: make([]StatisticDTO, 0, len(res.Statistics)),
		Invoices:   make([]InvoiceDTO, 0, len(res.Invoices)),
	}
	for _, s := range res.Statistics {
		out.Statistics = append(out.Statistics, ToStatisticDTO(s))
	}
	for _, i := range res.Invoices {
		out.Invoices = append(out.Invoices, ToInvoiceDTO(i))
	}
	return out
}

// FromLedgerDTO converts a wire ledger read back to a fetch result.
func FromLedgerDTO(dto LedgerDTO) (ledger.FetchResult, error) {
	var res ledger.FetchResult
	for _, s := range dto.Statistics {
		rec, err := FromStatisticDTO(s)
		if err != nil {
			return ledger.FetchResult{}, err
		}
		res.Statistics = append(res.Statistics, rec)
	}
	for _, i := range dto.Invoices {
		rec, err := FromInvoiceDTO(i)
		if err != nil {
			return ledger.FetchResult{}, err
		}
		res.Invoices = append(res.Invoices, rec)
	}
	return res, nil
}

func toQuantityDTO(q ledger.Quantity) QuantityDTO {
	return QuantityDTO{Cartons: q.Cartons, Weight: q.Weight.String()}
}

func fromQuantityDTO(dto QuantityDTO) (ledger.Quantity, error) {
	w := dto.Weight
	if w == "" {
		w = "0"
	}
	d, err := decimal.NewFromString(w)
	if err != nil {
		return ledger.Quantity{}, fmt.Errorf("invalid weight %q", dto.Weight)
	}
	return ledger.Quantity{Cartons: dto.Cartons, Weight: d}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(time.RFC3339, s)
	return t
}
