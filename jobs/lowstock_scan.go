package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	jobmetrics "github.com/aegisfm/aegisfm/internal/jobs"
	"github.com/aegisfm/aegisfm/internal/stock"
)

const (
	// TaskLowStockScan walks every company's stock and flags items at or
	// below their minimum.
	TaskLowStockScan = "stock:low_stock_scan"
)

// LowStockPayload carries scheduling metadata.
type LowStockPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLowStockScanTask constructs the periodic low stock scan task.
func NewLowStockScanTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(LowStockPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLowStockScan, body, asynq.Queue(QueueDefault)), nil
}

// StockScanner lists tenants and their items running low.
type StockScanner interface {
	Companies(ctx context.Context) ([]int64, error)
	LowStock(ctx context.Context, companyID int64) ([]stock.View, error)
}

// AlertSink receives the rendered alert for delivery.
type AlertSink interface {
	EnqueueSendEmail(ctx context.Context, payload SendEmailPayload) (*asynq.TaskInfo, error)
}

// NewLowStockScanHandler builds the Asynq handler for the low stock scan.
func NewLowStockScanHandler(scanner StockScanner, sink AlertSink, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	printer := message.NewPrinter(language.English)
	return func(ctx context.Context, t *asynq.Task) error {
		var payload LowStockPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		tracker := metrics.Track("low_stock_scan")
		return tracker.End(func() error {
			companies, err := scanner.Companies(ctx)
			if err != nil {
				return err
			}
			for _, companyID := range companies {
				views, err := scanner.LowStock(ctx, companyID)
				if err != nil {
					return err
				}
				if len(views) == 0 {
					continue
				}
				metrics.AddAlerts("low_stock", companyID, len(views))
				body := printer.Sprintf("%d items are at or below minimum stock:\n", len(views))
				for _, v := range views {
					body += printer.Sprintf("  %s %s: %.2f available\n", v.ItemNumber, v.Description, v.Available)
				}
				logger.Warn("low stock detected",
					slog.Int64("company_id", companyID),
					slog.Int("items", len(views)))
				if sink != nil {
					if _, err := sink.EnqueueSendEmail(ctx, SendEmailPayload{
						To:      "inventory-alerts",
						Subject: printer.Sprintf("Low stock: %d items", len(views)),
						Body:    body,
					}); err != nil {
						logger.Error("enqueue low stock alert failed", slog.Any("error", err))
					}
				}
			}
			return nil
		}())
	}
}
