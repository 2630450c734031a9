package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/aegisfm/aegisfm/internal/jobs"
	"github.com/aegisfm/aegisfm/internal/stock"
)

const (
	// TaskLedgerIntegrity reconciles the ledger against stored balances.
	TaskLedgerIntegrity = "stock:ledger_integrity"

	balanceEpsilon = 1e-6
)

// LedgerIntegrityPayload carries scheduling metadata.
type LedgerIntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs the periodic reconciliation task.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LedgerIntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}

// LedgerAuditor sums signed ledger quantities and stored balances per stock
// location. Replaying the ledger must reproduce on-hand minus reserved for
// every location; a mismatch means a movement was applied without its entry
// or vice versa.
type LedgerAuditor interface {
	Companies(ctx context.Context) ([]int64, error)
	LedgerTotals(ctx context.Context, companyID int64) (map[stock.LocationKey]float64, error)
	LocationTotals(ctx context.Context, companyID int64) (map[stock.LocationKey]float64, error)
}

// NewLedgerIntegrityHandler builds the Asynq handler for the reconciliation.
func NewLedgerIntegrityHandler(auditor LedgerAuditor, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LedgerIntegrityPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("ledger_integrity")
		return tracker.End(func() error {
			companies, err := auditor.Companies(ctx)
			if err != nil {
				return err
			}
			for _, companyID := range companies {
				ledger, err := auditor.LedgerTotals(ctx, companyID)
				if err != nil {
					return err
				}
				stored, err := auditor.LocationTotals(ctx, companyID)
				if err != nil {
					return err
				}
				mismatches := 0
				for key, want := range stored {
					if math.Abs(ledger[key]-want) > balanceEpsilon {
						mismatches++
						logger.Error("ledger does not reconcile with stored balance",
							slog.Int64("company_id", companyID),
							slog.Int64("item_id", key.ItemID),
							slog.Int64("warehouse_id", key.WarehouseID),
							slog.Int64("device_id", key.DeviceID),
							slog.Float64("ledger_sum", ledger[key]),
							slog.Float64("stored_balance", want))
					}
				}
				for key, sum := range ledger {
					if _, ok := stored[key]; !ok && math.Abs(sum) > balanceEpsilon {
						mismatches++
						logger.Error("ledger references location with no balance row",
							slog.Int64("company_id", companyID),
							slog.Int64("item_id", key.ItemID),
							slog.Int64("warehouse_id", key.WarehouseID),
							slog.Int64("device_id", key.DeviceID),
							slog.Float64("ledger_sum", sum))
					}
				}
				metrics.AddAlerts("ledger_mismatch", companyID, mismatches)
			}
			return nil
		}())
	}
}
