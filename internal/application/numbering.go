package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/workorder-scheduler/internal/scheduler"
)

// workOrderNumberer hands out the next "N<int>" work order number by looking
// at the most recently created record. Numbers are best effort: two callers
// racing on the same store can observe the same predecessor.
type workOrderNumberer struct {
	store WorkOrderStore
	now   func() time.Time
}

// Next returns the number following the latest record. A store without
// parsable numbers starts at N1; a failed lookup falls back to a
// millisecond timestamp so creation can still proceed.
func (n workOrderNumberer) Next(ctx context.Context, logger *slog.Logger) string {
	latest, err := n.store.ListWorkOrders(ctx, ListWorkOrdersParams{Sort: "-created_at", Limit: 1})
	if err != nil {
		fallback := fmt.Sprintf("%s%d", scheduler.WorkOrderNumberPrefix, n.now().UnixMilli())
		logger.WarnContext(ctx, "work order number lookup failed; using timestamp",
			"error", err,
			"error_kind", ErrorKind(err),
			"work_order_number", fallback,
		)
		return fallback
	}
	if len(latest) == 0 {
		return scheduler.SequenceKey(1).String()
	}
	key, ok := scheduler.ParseSequenceKeyStrict(latest[0].WorkOrderNumber)
	if !ok {
		return scheduler.SequenceKey(1).String()
	}
	return key.Next().String()
}
