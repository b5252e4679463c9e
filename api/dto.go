/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication, decoupling the internal
  domain model (decimal amounts, time.Time) from the external contract
  (float64 amounts, YYYY-MM-DD dates).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Shape validation is done in handlers; business validation (overpayment,
  state machine) in the ledger package. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - ledger/types.go: Domain entities these project
*/
package api

import (
	"time"

	"github.com/abacus/credit-engine/ledger"
)

const dateLayout = "2006-01-02"

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// ClientDTO represents a client in API responses.
type ClientDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ExternalRef string `json:"external_ref,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
	CreatedAt   string `json:"created_at,omitempty"`
}

// CreateClientRequest is the request to create a client.
type CreateClientRequest struct {
	Name        string `json:"name"`
	ExternalRef string `json:"external_ref,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Email       string `json:"email,omitempty"`
}

// UpdateContactRequest updates a client's contact info. Nil fields keep the
// stored value; at least one must be present.
type UpdateContactRequest struct {
	Phone *string `json:"phone,omitempty"`
	Email *string `json:"email,omitempty"`
}

// SaleDTO is a sale enriched with its reconciled balance.
type SaleDTO struct {
	ID                 string  `json:"id"`
	ClientID           string  `json:"client_id"`
	Product            string  `json:"product"`
	TotalAmount        float64 `json:"total_amount"`
	TotalPaid          float64 `json:"total_paid"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	Status             string  `json:"status"`
	SaleDate           string  `json:"sale_date"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

// CreateSaleRequest is the request to create a sale.
type CreateSaleRequest struct {
	ClientID    string  `json:"client_id"`
	Product     string  `json:"product"`
	TotalAmount float64 `json:"total_amount"`
	SaleDate    string  `json:"sale_date"`
}

// LayawayDTO is a layaway enriched with its reconciled balance.
type LayawayDTO struct {
	ID                 string  `json:"id"`
	ClientID           string  `json:"client_id"`
	Product            string  `json:"product"`
	TotalAmount        float64 `json:"total_amount"`
	TotalPaid          float64 `json:"total_paid"`
	OutstandingBalance float64 `json:"outstanding_balance"`
	Status             string  `json:"status"`
	ReservedDate       string  `json:"reserved_date"`
	DeliveryDate       *string `json:"delivery_date,omitempty"`
	CreatedAt          string  `json:"created_at,omitempty"`
}

// CreateLayawayRequest is the request to create a layaway.
type CreateLayawayRequest struct {
	ClientID     string  `json:"client_id"`
	Product      string  `json:"product"`
	TotalAmount  float64 `json:"total_amount"`
	ReservedDate string  `json:"reserved_date"`
}

// UpdateDateRequest rewrites a sale date or layaway reservation date.
type UpdateDateRequest struct {
	Date string `json:"date"`
}

// PaymentDTO represents a payment in API responses.
type PaymentDTO struct {
	ID        string  `json:"id"`
	SaleID    string  `json:"sale_id,omitempty"`
	LayawayID string  `json:"layaway_id,omitempty"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Comment   string  `json:"comment,omitempty"`
	CreatedAt string  `json:"created_at,omitempty"`
}

// CreatePaymentRequest is the request to record a payment.
type CreatePaymentRequest struct {
	SaleID    string  `json:"sale_id,omitempty"`
	LayawayID string  `json:"layaway_id,omitempty"`
	Amount    float64 `json:"amount"`
	Date      string  `json:"date"`
	Comment   string  `json:"comment,omitempty"`
}

// PaymentResultDTO is the response after a payment is admitted: the created
// payment plus the parent's post-insert position.
type PaymentResultDTO struct {
	Payment            PaymentDTO `json:"payment"`
	TotalPaid          float64    `json:"total_paid"`
	OutstandingBalance float64    `json:"outstanding_balance"`
	ParentStatus       string     `json:"parent_status"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toClientDTO(c ledger.Client) ClientDTO {
	return ClientDTO{
		ID:          c.ID,
		Name:        c.Name,
		ExternalRef: c.ExternalRef,
		Phone:       c.Phone,
		Email:       c.Email,
		CreatedAt:   c.CreatedAt.Format(time.RFC3339),
	}
}

func toSaleDTO(s ledger.Sale, b ledger.Balance) SaleDTO {
	total, _ := b.Total.Float64()
	paid, _ := b.Paid.Float64()
	outstanding, _ := b.Outstanding.Float64()
	return SaleDTO{
		ID:                 s.ID,
		ClientID:           s.ClientID,
		Product:            s.Product,
		TotalAmount:        total,
		TotalPaid:          paid,
		OutstandingBalance: outstanding,
		Status:             string(s.Status),
		SaleDate:           s.SaleDate.Format(dateLayout),
		CreatedAt:          s.CreatedAt.Format(time.RFC3339),
	}
}

func toLayawayDTO(l ledger.Layaway, b ledger.Balance) LayawayDTO {
	total, _ := b.Total.Float64()
	paid, _ := b.Paid.Float64()
	outstanding, _ := b.Outstanding.Float64()
	dto := LayawayDTO{
		ID:                 l.ID,
		ClientID:           l.ClientID,
		Product:            l.Product,
		TotalAmount:        total,
		TotalPaid:          paid,
		OutstandingBalance: outstanding,
		Status:             string(l.Status),
		ReservedDate:       l.ReservedDate.Format(dateLayout),
		CreatedAt:          l.CreatedAt.Format(time.RFC3339),
	}
	if l.DeliveredAt != nil {
		d := l.DeliveredAt.Format(dateLayout)
		dto.DeliveryDate = &d
	}
	return dto
}

func toPaymentDTO(p ledger.Payment) PaymentDTO {
	amount, _ := p.Amount.Float64()
	return PaymentDTO{
		ID:        p.ID,
		SaleID:    p.Parent.SaleID,
		LayawayID: p.Parent.LayawayID,
		Amount:    amount,
		Date:      p.PaidAt.Format(dateLayout),
		Comment:   p.Comment,
		CreatedAt: p.CreatedAt.Format(time.RFC3339),
	}
}

func toPaymentDTOs(payments []ledger.Payment) []PaymentDTO {
	dtos := make([]PaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toPaymentDTO(p)
	}
	return dtos
}
