package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (Transfer, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]Transfer, int, error)
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

// Service coordinates stock transfers.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier MovementNotifier
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier MovementNotifier) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier}
}

// LineInput is one requested item on a new transfer.
type LineInput struct {
	ItemID   int64
	Quantity float64
	UnitCost float64
}

// CreateInput describes a new draft transfer.
type CreateInput struct {
	CompanyID     int64
	SourceID      int64
	DestWarehouse int64
	DestDevice    int64
	Notes         string
	Lines         []LineInput
	ActorID       int64
}

// Create records a draft transfer. No stock moves until completion.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if input.CompanyID == 0 {
		return Transfer{}, shared.ErrNoCompany
	}
	if input.SourceID == 0 {
		return Transfer{}, fmt.Errorf("%w: source warehouse required", ErrInvalidInput)
	}
	dest := stock.LocationRef{WarehouseID: input.DestWarehouse, DeviceID: input.DestDevice}
	if !dest.Valid() {
		return Transfer{}, fmt.Errorf("%w: exactly one destination warehouse or device required", ErrInvalidInput)
	}
	if input.DestWarehouse == input.SourceID {
		return Transfer{}, fmt.Errorf("%w: destination matches source", ErrInvalidInput)
	}
	if len(input.Lines) == 0 {
		return Transfer{}, ErrNoLines
	}
	for _, line := range input.Lines {
		if line.ItemID == 0 || line.Quantity <= 0 {
			return Transfer{}, fmt.Errorf("%w: lines require an item and positive quantity", ErrInvalidInput)
		}
	}

	var created Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.Stock().NextTransactionNumber(ctx, input.CompanyID, "TRF")
		if err != nil {
			return fmt.Errorf("allocate transfer number: %w", err)
		}
		created, err = tx.Create(ctx, Transfer{
			CompanyID:     input.CompanyID,
			Number:        number,
			SourceID:      input.SourceID,
			DestWarehouse: input.DestWarehouse,
			DestDevice:    input.DestDevice,
			Status:        StatusDraft,
			Notes:         input.Notes,
			CreatedBy:     input.ActorID,
		})
		if err != nil {
			return err
		}
		for _, line := range input.Lines {
			saved, err := tx.CreateLine(ctx, Line{
				TransferID: created.ID,
				ItemID:     line.ItemID,
				Quantity:   line.Quantity,
				UnitCost:   line.UnitCost,
			})
			if err != nil {
				return err
			}
			created.Lines = append(created.Lines, saved)
		}
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: input.CompanyID,
			ActorID:   input.ActorID,
			Action:    "transfers:create",
			Entity:    "transfer",
			EntityID:  created.Number,
			Meta:      map[string]any{"transfer_id": created.ID, "lines": len(created.Lines)},
		})
	}
	return created, nil
}

// Complete moves every line: one outbound leg at the source, one inbound leg
// at the destination, both stamped with the transfer id. The cost follows
// the inventory: the source's current average, falling back to the line's
// recorded cost. Any failing line aborts the whole transfer.
func (s *Service) Complete(ctx context.Context, companyID, transferID, actorID int64) (Transfer, error) {
	var completed Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		tr, err := tx.GetForUpdate(ctx, companyID, transferID)
		if err != nil {
			return err
		}
		if tr.Status == StatusCompleted {
			return ErrAlreadyCompleted
		}
		lines, err := tx.Lines(ctx, tr.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return ErrNoLines
		}

		st := tx.Stock()
		source := stock.LocationRef{WarehouseID: tr.SourceID}
		dest := stock.LocationRef{WarehouseID: tr.DestWarehouse, DeviceID: tr.DestDevice}
		for _, line := range lines {
			cost, err := transferCost(ctx, st, companyID, line, source)
			if err != nil {
				return err
			}
			if _, err := stock.Apply(ctx, st, stock.Movement{
				CompanyID:  companyID,
				ItemID:     line.ItemID,
				Type:       stock.TransactionTypeTransferOut,
				Quantity:   line.Quantity,
				UnitCost:   cost,
				From:       source,
				To:         dest,
				TransferID: tr.ID,
				ActorID:    actorID,
			}); err != nil {
				return err
			}
			if _, err := stock.Apply(ctx, st, stock.Movement{
				CompanyID:  companyID,
				ItemID:     line.ItemID,
				Type:       stock.TransactionTypeTransferIn,
				Quantity:   line.Quantity,
				UnitCost:   cost,
				From:       source,
				To:         dest,
				TransferID: tr.ID,
				ActorID:    actorID,
			}); err != nil {
				return err
			}
			if err := tx.SetLineActualCost(ctx, line.ID, cost); err != nil {
				return err
			}
		}
		if err := tx.MarkCompleted(ctx, companyID, tr.ID, actorID); err != nil {
			return err
		}
		completed = tr
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			CompanyID: companyID,
			ActorID:   actorID,
			Action:    "transfers:complete",
			Entity:    "transfer",
			EntityID:  completed.Number,
			Meta:      map[string]any{"transfer_id": transferID},
		})
	}
	if s.notifier != nil {
		s.notifier.MovementPosted(ctx, companyID, string(stock.TransactionTypeTransferOut))
	}
	return s.repo.Get(ctx, companyID, transferID)
}

// transferCost resolves the unit cost carried by a transfer line: source
// average first, the line's recorded cost as fallback. A source that never
// held the item is an insufficient stock failure, not a missing row.
func transferCost(ctx context.Context, st stock.Tx, companyID int64, line Line, source stock.LocationRef) (float64, error) {
	loc, err := st.LocationForUpdate(ctx, companyID, line.ItemID, source)
	if err != nil {
		if errors.Is(err, stock.ErrNoStockRecord) {
			return 0, &stock.InsufficientStockError{ItemID: line.ItemID, Available: 0, Requested: line.Quantity}
		}
		return 0, err
	}
	if loc.AverageCost > 0 {
		return loc.AverageCost, nil
	}
	return line.UnitCost, nil
}

// Get loads one transfer with its lines.
func (s *Service) Get(ctx context.Context, companyID, id int64) (Transfer, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns a page of transfers.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]Transfer, int, error) {
	return s.repo.List(ctx, companyID, filter)
}
