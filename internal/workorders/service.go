package workorders

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/aegisfm/aegisfm/internal/shared"
	"github.com/aegisfm/aegisfm/internal/stock"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, companyID, id int64) (WorkOrder, error)
	List(ctx context.Context, companyID int64, filter ListFilter) ([]WorkOrder, int, error)
	Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error)
	EntriesForWorkOrder(ctx context.Context, companyID, workOrderID int64) ([]stock.LedgerEntry, error)
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

// Service coordinates the work order lifecycle and its part claims.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier MovementNotifier
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, notifier MovementNotifier) *Service {
	return &Service{repo: repo, audit: audit, notifier: notifier}
}

func (s *Service) notify(ctx context.Context, companyID int64, txType stock.TransactionType) {
	if s.notifier != nil {
		s.notifier.MovementPosted(ctx, companyID, string(txType))
	}
}

func (s *Service) record(ctx context.Context, companyID, actorID int64, action, number string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		CompanyID: companyID,
		ActorID:   actorID,
		Action:    action,
		Entity:    "work_order",
		EntityID:  number,
		Meta:      meta,
	})
}

// CreateInput describes a new work order.
type CreateInput struct {
	CompanyID   int64
	Title       string
	Description string
	DeviceID    int64
	BranchID    int64
	AssignedTo  int64
	Checklist   []string
	ActorID     int64
}

// Create inserts a work order with its checklist, allocating the number
// inside the same transaction.
func (s *Service) Create(ctx context.Context, input CreateInput) (WorkOrder, error) {
	if input.CompanyID == 0 {
		return WorkOrder{}, shared.ErrNoCompany
	}
	if strings.TrimSpace(input.Title) == "" {
		return WorkOrder{}, fmt.Errorf("%w: title required", ErrInvalidInput)
	}

	var created WorkOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, input.CompanyID)
		if err != nil {
			return fmt.Errorf("allocate work order number: %w", err)
		}
		created, err = tx.Create(ctx, WorkOrder{
			CompanyID:   input.CompanyID,
			Number:      number,
			Title:       strings.TrimSpace(input.Title),
			Description: input.Description,
			DeviceID:    input.DeviceID,
			BranchID:    input.BranchID,
			Status:      StatusOpen,
			AssignedTo:  input.AssignedTo,
			CreatedBy:   input.ActorID,
		})
		if err != nil {
			return err
		}
		for i, desc := range input.Checklist {
			desc = strings.TrimSpace(desc)
			if desc == "" {
				continue
			}
			if _, err := tx.AddChecklistItem(ctx, ChecklistItem{
				WorkOrderID: created.ID,
				Position:    i + 1,
				Description: desc,
			}); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.record(ctx, input.CompanyID, input.ActorID, "work_orders:create", created.Number, map[string]any{"work_order_id": created.ID})
	return created, nil
}

// IssueInput requests parts for a work order.
type IssueInput struct {
	CompanyID   int64
	WorkOrderID int64
	ItemID      int64
	WarehouseID int64
	DeviceID    int64
	Quantity    float64
	Notes       string
	ActorID     int64
}

// IssueItem places a reservation hold for the work order: available stock is
// checked, reserved is raised, on-hand stays untouched until approval.
func (s *Service) IssueItem(ctx context.Context, input IssueInput) (stock.LedgerEntry, error) {
	if input.Quantity <= 0 {
		return stock.LedgerEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	var entry stock.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, input.CompanyID, input.WorkOrderID)
		if err != nil {
			return err
		}
		if err := mutable(wo); err != nil {
			return err
		}
		from := stock.LocationRef{WarehouseID: input.WarehouseID, DeviceID: input.DeviceID}
		if from.Zero() && wo.DeviceID != 0 {
			from = stock.LocationRef{DeviceID: wo.DeviceID}
		}
		entry, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
			CompanyID:   input.CompanyID,
			ItemID:      input.ItemID,
			Type:        stock.TransactionTypeIssueWorkOrder,
			Quantity:    input.Quantity,
			From:        from,
			WorkOrderID: wo.ID,
			Notes:       input.Notes,
			ActorID:     input.ActorID,
		})
		return err
	})
	if err != nil {
		return stock.LedgerEntry{}, err
	}
	s.notify(ctx, input.CompanyID, stock.TransactionTypeIssueWorkOrder)
	return entry, nil
}

// ReturnItem releases part of a hold before approval. The returned quantity
// is bounded by the net issued quantity for that claim, and the entry is
// valued at the original issue cost when one can be found.
func (s *Service) ReturnItem(ctx context.Context, input IssueInput) (stock.LedgerEntry, error) {
	if input.Quantity <= 0 {
		return stock.LedgerEntry{}, fmt.Errorf("%w: quantity must be positive", ErrInvalidInput)
	}
	var entry stock.LedgerEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, input.CompanyID, input.WorkOrderID)
		if err != nil {
			return err
		}
		if err := mutable(wo); err != nil {
			return err
		}
		to := stock.LocationRef{WarehouseID: input.WarehouseID, DeviceID: input.DeviceID}
		if to.Zero() && wo.DeviceID != 0 {
			to = stock.LocationRef{DeviceID: wo.DeviceID}
		}
		entries, err := tx.Stock().EntriesForWorkOrder(ctx, input.CompanyID, wo.ID)
		if err != nil {
			return err
		}
		key := stock.IssueKey{ItemID: input.ItemID, WarehouseID: to.WarehouseID, DeviceID: to.DeviceID}
		net := stock.NetIssued(entries)[key]
		if input.Quantity > net+1e-9 {
			return fmt.Errorf("%w: issued %.3f, returning %.3f", ErrReturnExceedsIssued, net, input.Quantity)
		}
		entry, err = stock.Apply(ctx, tx.Stock(), stock.Movement{
			CompanyID:   input.CompanyID,
			ItemID:      input.ItemID,
			Type:        stock.TransactionTypeReturnWorkOrder,
			Quantity:    input.Quantity,
			UnitCost:    issueCost(entries, key),
			To:          to,
			WorkOrderID: wo.ID,
			Notes:       input.Notes,
			ActorID:     input.ActorID,
		})
		return err
	})
	if err != nil {
		return stock.LedgerEntry{}, err
	}
	s.notify(ctx, input.CompanyID, stock.TransactionTypeReturnWorkOrder)
	return entry, nil
}

// issueCost returns the unit cost of the most recent issue entry matching
// the claim, zero when none is found so posting falls back to the location
// average.
func issueCost(entries []stock.LedgerEntry, key stock.IssueKey) float64 {
	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if e.Type != stock.TransactionTypeIssueWorkOrder || e.ItemID != key.ItemID {
			continue
		}
		if e.FromWarehouseID == key.WarehouseID && e.FromDeviceID == key.DeviceID {
			return e.UnitCost
		}
	}
	return 0
}

// Approve finalizes every open part claim: for each item with positive net
// issued quantity the hold becomes a real deduction, reserved and on-hand
// both dropping by the net amount. No new ledger rows are written; the
// issue and return entries already record the consumption.
func (s *Service) Approve(ctx context.Context, companyID, workOrderID, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		number = wo.Number
		switch wo.Status {
		case StatusApproved:
			return ErrAlreadyApproved
		case StatusCancelled:
			return ErrAlreadyCancelled
		case StatusOpen:
			return ErrNotCompleted
		}

		checklist, err := tx.Checklist(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		for _, item := range checklist {
			if !item.Completed {
				return fmt.Errorf("%w: %q", ErrChecklistIncomplete, item.Description)
			}
		}

		st := tx.Stock()
		entries, err := st.EntriesForWorkOrder(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		for key, net := range stock.NetIssued(entries) {
			loc, err := resolveClaim(ctx, st, companyID, key)
			if err != nil {
				return err
			}
			loc.Reserved = math.Max(0, loc.Reserved-net)
			loc.OnHand = math.Max(0, loc.OnHand-net)
			if err := st.UpdateLocation(ctx, loc); err != nil {
				return err
			}
		}
		return tx.MarkApproved(ctx, companyID, workOrderID, actorID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "work_orders:approve", number, map[string]any{"work_order_id": workOrderID})
	s.notify(ctx, companyID, stock.TransactionTypeIssueWorkOrder)
	return nil
}

// Cancel reverses every remaining part claim and writes one cancel entry per
// claim. Before approval the hold is simply released; after approval the
// already-deducted quantity is restocked.
func (s *Service) Cancel(ctx context.Context, companyID, workOrderID, actorID int64, reason string) (CancelResult, error) {
	var result CancelResult
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		number = wo.Number
		if wo.Status == StatusCancelled {
			return ErrAlreadyCancelled
		}
		wasApproved := wo.Status == StatusApproved

		st := tx.Stock()
		entries, err := st.EntriesForWorkOrder(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		for key, net := range stock.NetIssued(entries) {
			if _, err := stock.Apply(ctx, st, stock.Movement{
				CompanyID:   companyID,
				ItemID:      key.ItemID,
				Type:        stock.TransactionTypeCancelWorkOrder,
				Quantity:    net,
				UnitCost:    issueCost(entries, key),
				To:          key.Ref(),
				WorkOrderID: workOrderID,
				Notes:       reason,
				ActorID:     actorID,
				Restock:     wasApproved,
			}); err != nil {
				return err
			}
			result.ItemsReversed++
		}
		result.WasApproved = wasApproved
		return tx.MarkCancelled(ctx, companyID, workOrderID, actorID, reason)
	})
	if err != nil {
		return CancelResult{}, err
	}
	s.record(ctx, companyID, actorID, "work_orders:cancel", number, map[string]any{"work_order_id": workOrderID, "reason": reason})
	if result.ItemsReversed > 0 {
		s.notify(ctx, companyID, stock.TransactionTypeCancelWorkOrder)
	}
	return result, nil
}

// Complete marks the field work done. Part returns are still accepted
// afterwards; approval requires this state.
func (s *Service) Complete(ctx context.Context, companyID, workOrderID, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		number = wo.Number
		if wo.Status == StatusCompleted {
			return nil
		}
		if err := mutable(wo); err != nil {
			return err
		}
		return tx.MarkCompleted(ctx, companyID, workOrderID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "work_orders:complete", number, map[string]any{"work_order_id": workOrderID})
	return nil
}

// Delete removes a work order that never touched stock. Once ledger entries
// reference it the order can only be cancelled.
func (s *Service) Delete(ctx context.Context, companyID, workOrderID, actorID int64) error {
	var number string
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		number = wo.Number
		entries, err := tx.Stock().EntriesForWorkOrder(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			return ErrHasMovements
		}
		return tx.Delete(ctx, companyID, workOrderID)
	})
	if err != nil {
		return err
	}
	s.record(ctx, companyID, actorID, "work_orders:delete", number, map[string]any{"work_order_id": workOrderID})
	return nil
}

// CompleteChecklistItem marks one checklist task done.
func (s *Service) CompleteChecklistItem(ctx context.Context, companyID, workOrderID, itemID, actorID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		wo, err := tx.GetForUpdate(ctx, companyID, workOrderID)
		if err != nil {
			return err
		}
		if err := mutable(wo); err != nil {
			return err
		}
		return tx.CompleteChecklistItem(ctx, companyID, workOrderID, itemID, actorID)
	})
}

// Get loads one work order.
func (s *Service) Get(ctx context.Context, companyID, id int64) (WorkOrder, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns a page of work orders.
func (s *Service) List(ctx context.Context, companyID int64, filter ListFilter) ([]WorkOrder, int, error) {
	return s.repo.List(ctx, companyID, filter)
}

// Checklist lists a work order's checklist items.
func (s *Service) Checklist(ctx context.Context, companyID, workOrderID int64) ([]ChecklistItem, error) {
	if _, err := s.repo.Get(ctx, companyID, workOrderID); err != nil {
		return nil, err
	}
	return s.repo.Checklist(ctx, companyID, workOrderID)
}

// IssuedItems replays the work order's ledger into the current net claims.
func (s *Service) IssuedItems(ctx context.Context, companyID, workOrderID int64) ([]IssuedItem, error) {
	if _, err := s.repo.Get(ctx, companyID, workOrderID); err != nil {
		return nil, err
	}
	entries, err := s.repo.EntriesForWorkOrder(ctx, companyID, workOrderID)
	if err != nil {
		return nil, err
	}
	items := []IssuedItem{}
	for key, net := range stock.NetIssued(entries) {
		cost := issueCost(entries, key)
		items = append(items, IssuedItem{
			ItemID:      key.ItemID,
			WarehouseID: key.WarehouseID,
			DeviceID:    key.DeviceID,
			Quantity:    net,
			UnitCost:    cost,
			TotalCost:   net * cost,
		})
	}
	return items, nil
}

// mutable rejects part mutations on finalized work orders.
func mutable(wo WorkOrder) error {
	switch wo.Status {
	case StatusApproved:
		return ErrAlreadyApproved
	case StatusCancelled:
		return ErrAlreadyCancelled
	}
	return nil
}

// resolveClaim locks the balance row backing a claim, following the device
// to its linked warehouse when the device itself holds no record.
func resolveClaim(ctx context.Context, st stock.Tx, companyID int64, key stock.IssueKey) (stock.Location, error) {
	loc, err := st.LocationForUpdate(ctx, companyID, key.ItemID, key.Ref())
	if err == nil {
		return loc, nil
	}
	if !errors.Is(err, stock.ErrNoStockRecord) || key.DeviceID == 0 {
		return stock.Location{}, err
	}
	warehouseID, err := st.DeviceWarehouse(ctx, companyID, key.DeviceID)
	if err != nil {
		return stock.Location{}, err
	}
	if warehouseID == 0 {
		return stock.Location{}, stock.ErrNoStockRecord
	}
	return st.LocationForUpdate(ctx, companyID, key.ItemID, stock.LocationRef{WarehouseID: warehouseID})
}
