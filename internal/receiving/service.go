package receiving

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (Invoice, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error)
}

// WarehouseResolver locates the company's main warehouse for receipts that
// name no destination.
type WarehouseResolver interface {
	MainWarehouse(ctx context.Context, companyID int64) (int64, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementNotifier is told after a committed transaction posted stock
// movements.
type MovementNotifier interface {
	MovementPosted(ctx context.Context, companyID int64, txType string)
}

// Service coordinates goods receipt against vendor invoices.
type Service struct {
	repo        RepositoryPort
	warehouses  WarehouseResolver
	audit       AuditPort
	idempotency *shared.IdempotencyStore
	notifier    MovementNotifier
}

// NewService builds Service.
func NewService(repo RepositoryPort, warehouses WarehouseResolver, audit AuditPort, idem *shared.IdempotencyStore, notifier MovementNotifier) *Service {
	return &Service{repo: repo, warehouses: warehouses, audit: audit, idempotency: idem, notifier: notifier}
}

func (s *Service) notify(ctx context.Context, companyID int64) {
	if s.notifier != nil {
		s.notifier.MovementPosted(ctx, companyID, string(stock.TransactionTypeReceiveInvoice))
	}
}

// LineInput is one invoiced item.
type LineInput struct {
	ItemID   int64
	Quantity float64
	UnitCost float64
}

// CreateInvoiceInput describes a new invoice awaiting receipt.
type CreateInvoiceInput struct {
	CompanyID   int64
	Number      string
	VendorID    int64
	InvoiceDate time.Time
	Notes       string
	Lines       []LineInput
	ActorID     int64
}

// CreateInvoice records the invoice and its lines. Nothing is received yet.
func (s *Service) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (Invoice, error) {
	if input.CompanyID == 0 {
		return Invoice{}, shared.ErrNoCompany
	}
	if strings.TrimSpace(input.Number) == "" {
		return Invoice{}, fmt.Errorf("%w: invoice number required", ErrInvalidInput)
	}
	if len(input.Lines) == 0 {
		return Invoice{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Quantity <= 0 || line.UnitCost < 0 {
			return Invoice{}, fmt.Errorf("%w: lines require an item, positive quantity and non-negative cost", ErrInvalidInput)
		}
	}
	if input.InvoiceDate.IsZero() {
		input.InvoiceDate = time.Now().UTC()
	}

	var created Invoice
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		created, err = tx.Create(ctx, Invoice{
			CompanyID:   input.CompanyID,
			Number:      strings.TrimSpace(input.Number),
			VendorID:    input.VendorID,
			InvoiceDate: input.InvoiceDate,
			Status:      StatusPending,
			Notes:       input.Notes,
			CreatedBy:   input.ActorID,
		})
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			saved, err := tx.CreateLine(ctx, Line{
				InvoiceID: created.ID,
				ItemID:    line.ItemID,
				Quantity:  line.Quantity,
				UnitCost:  line.UnitCost,
			})
			if err != nil {
				return err
			}
			created.Lines = append(created.Lines, saved)
		}
		return nil
	})
	if err != nil {
		return Invoice{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: input.CompanyID,
			ActorID:   input.ActorID,
			Action:    "receiving:create_invoice",
			Entity:    "purchase_invoice",
			EntityID:  created.Number,
			Meta:      map[string]any{"invoice_id": created.ID, "lines": len(created.Lines)},
		})
	}
	return created, nil
}

// ReceiveLineInput receives part of one invoice line.
type ReceiveLineInput struct {
	CompanyID      int64
	InvoiceID      int64
	LineID         int64
	WarehouseID    int64
	Quantity       float64
	IdempotencyKey string
	ActorID        int64
}

// ReceiveLine books a (possibly partial) receipt of one line into a
// warehouse and updates the invoice's receive status.
func (s *Service) ReceiveLine(ctx context.Context, input ReceiveLineInput) (stock.LedgerEntry, error) {
	if input.Quantity <= 0 {
		return stock.LedgerEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	if s.idempotency != nil && input.IdempotencyKey != "" {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "receiving"); err != nil {
			return stock.LedgerEntry{}, err
		}
	}
	var entry stock.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, input.CompanyID, input.InvoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusReceived {
			return ErrAlreadyReceived
		}
		lines, err := tx.Lines(ctx, inv.ID)
		if err != nil {
			return err
		}
		var line *Line
		for i := range lines {
			if lines[i].ID == input.LineID {
				line = &lines[i]
				break
			}
		}
		if line == nil {
			return ErrLineNotFound
		}
		if input.Quantity > line.Remaining()+1e-9 {
			return fmt.Errorf("%w: %.3f remaining, requested %.3f", ErrOverReceive, line.Remaining(), input.Quantity)
		}
		warehouseID, err := s.destination(ctx, input.CompanyID, input.WarehouseID)
		if err != nil {
			return err
		}
		entry, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
			CompanyID: input.CompanyID,
			ItemID:    line.ItemID,
			Type:      stock.TransactionTypeReceiveInvoice,
			Quantity:  input.Quantity,
			UnitCost:  line.UnitCost,
			To:        stock.LocationRef{WarehouseID: warehouseID},
			InvoiceID: inv.ID,
			Notes:     inv.Number,
			ActorID:   input.ActorID,
		})
		if err != nil {
			return err
		}
		if err := tx.AddReceivedQty(ctx, line.ID, input.Quantity); err != nil {
			return err
		}
		line.ReceivedQty += input.Quantity
		return tx.SetStatus(ctx, input.CompanyID, inv.ID, statusOf(lines))
	})
	if err != nil {
		if s.idempotency != nil && input.IdempotencyKey != "" {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return stock.LedgerEntry{}, err
	}
	s.notify(ctx, input.CompanyID)
	return entry, nil
}

// ReceiveAll receives every remaining quantity on the invoice into one
// warehouse, the company's main warehouse when none is named.
func (s *Service) ReceiveAll(ctx context.Context, companyID, invoiceID, warehouseID, actorID int64) ([]stock.LedgerEntry, error) {
	var entries []stock.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inv, err := tx.GetForUpdate(ctx, companyID, invoiceID)
		if err != nil {
			return err
		}
		if inv.Status == StatusReceived {
			return ErrAlreadyReceived
		}
		lines, err := tx.Lines(ctx, inv.ID)
		if err != nil {
			return err
		}
		dest, err := s.destination(ctx, companyID, warehouseID)
		if err != nil {
			return err
		}
		for i := range lines {
			remaining := lines[i].Remaining()
			if remaining <= 0 {
				continue
			}
			entry, err := stock.Apply(ctx, tx.Stock(), stock.Movement{
				CompanyID: companyID,
				ItemID:    lines[i].ItemID,
				Type:      stock.TransactionTypeReceiveInvoice,
				Quantity:  remaining,
				UnitCost:  lines[i].UnitCost,
				To:        stock.LocationRef{WarehouseID: dest},
				InvoiceID: inv.ID,
				Notes:     inv.Number,
				ActorID:   actorID,
			})
			if err != nil {
				return err
			}
			if err := tx.AddReceivedQty(ctx, lines[i].ID, remaining); err != nil {
				return err
			}
			entries = append(entries, entry)
		}
		return tx.SetStatus(ctx, companyID, inv.ID, StatusReceived)
	})
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		s.notify(ctx, companyID)
	}
	return entries, nil
}

// ReceiveInput books goods directly, outside any invoice. SourceReference is
// kept on the ledger entry for traceability.
type ReceiveInput struct {
	CompanyID       int64
	ItemID          int64
	WarehouseID     int64
	Quantity        float64
	UnitCost        float64
	SourceReference string
	ActorID         int64
}

// Receive posts one receipt movement. The caller decides how much to
// receive; this is the boundary other modules integrate with.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (stock.LedgerEntry, error) {
	if input.Quantity <= 0 {
		return stock.LedgerEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	// Source documents are deduplicated with a key derived from the
	// reference, so re-posting the same document is a no-op conflict.
	var dedupeKey string
	if s.idempotency != nil && input.SourceReference != "" {
		ref := fmt.Sprintf("RCV:%d:%s", input.CompanyID, input.SourceReference)
		dedupeKey = uuid.NewSHA1(uuid.Nil, []byte(ref)).String()
		if err := s.idempotency.CheckAndInsert(ctx, dedupeKey, "receiving"); err != nil {
			return stock.LedgerEntry{}, err
		}
	}
	warehouseID, err := s.destination(ctx, input.CompanyID, input.WarehouseID)
	if err != nil {
		if dedupeKey != "" {
			_ = s.idempotency.Delete(ctx, dedupeKey)
		}
		return stock.LedgerEntry{}, err
	}
	var entry stock.LedgerEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		entry, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
			CompanyID: input.CompanyID,
			ItemID:    input.ItemID,
			Type:      stock.TransactionTypeReceiveInvoice,
			Quantity:  input.Quantity,
			UnitCost:  input.UnitCost,
			To:        stock.LocationRef{WarehouseID: warehouseID},
			Notes:     input.SourceReference,
			ActorID:   input.ActorID,
		})
		return err
	})
	if err != nil {
		if dedupeKey != "" {
			_ = s.idempotency.Delete(ctx, dedupeKey)
		}
		return stock.LedgerEntry{}, err
	}
	s.notify(ctx, input.CompanyID)
	return entry, nil
}

func (s *Service) destination(ctx context.Context, companyID, warehouseID int64) (int64, error) {
	if warehouseID != 0 {
		return warehouseID, nil
	}
	if s.warehouses == nil {
		return 0, fmt.Errorf("%w: destination warehouse required", ErrInvalidInput)
	}
	id, err := s.warehouses.MainWarehouse(ctx, companyID)
	if err != nil {
		return 0, fmt.Errorf("resolve main warehouse: %w", err)
	}
	return id, nil
}

// statusOf derives the invoice receive status from its lines.
func statusOf(lines []Line) ReceiveStatus {
	received, any := true, false
	for _, line := range lines {
		if line.ReceivedQty > 0 {
			any = true
		}
		if line.Remaining() > 0 {
			received = false
		}
	}
	switch {
	case received:
		return StatusReceived
	case any:
		return StatusPartial
	}
	return StatusPending
}

// Get loads one invoice with its lines.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Invoice, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns a page of invoices.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Invoice, int, error) {
	return s.repo.List(ctx, companyID, filter)
}
