// Package sync implements the bidirectional sale/stock synchronization
// between the Caminho Certo retail system and the Linx point-of-sale
// platform: inbound sale ingestion, outbound delivery with a durable retry
// queue, and the audit trail covering both directions.
package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store"
)

// DeliveryClient pushes a locally-created sale to Linx once. Retrying is
// this package's job, never the client's.
type DeliveryClient interface {
	Deliver(ctx context.Context, sale json.RawMessage) (json.RawMessage, error)
}

type Service struct {
	repo   store.Repository
	linx   DeliveryClient
	audit  *AuditLog
	policy RetryPolicy
	logger *zap.Logger
}

func New(repo store.Repository, linx DeliveryClient, policy RetryPolicy, logger *zap.Logger) *Service {
	if policy.MaxAttempts < 1 {
		policy = DefaultRetryPolicy()
	}
	return &Service{
		repo:   repo,
		linx:   linx,
		audit:  NewAuditLog(repo, logger),
		policy: policy,
		logger: logger,
	}
}

// LookupByBarcode resolves a product by its external barcode key.
// store.ErrNotFound is a normal outcome the caller branches on, not a
// failure.
func (s *Service) LookupByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	return s.repo.GetProductByBarcode(ctx, barcode)
}

// ApplyStockDelta applies a signed quantity change and records the matching
// stock movement in one atomic store operation. Reductions below zero clamp
// at zero; the truncation is logged because it can hide demand that exceeds
// recorded stock.
func (s *Service) ApplyStockDelta(ctx context.Context, productID string, delta int, kind string, reason string) (*domain.StockChange, error) {
	change, err := s.repo.ApplyStockDelta(ctx, productID, delta, kind, reason)
	if err != nil {
		return nil, fmt.Errorf("apply stock delta: %w", err)
	}
	if change.NewQty != change.PreviousQty+delta {
		s.logger.Warn("stock clamped at zero",
			zap.String("product_id", productID),
			zap.Int("delta", delta),
			zap.Int("previous_qty", change.PreviousQty))
	}
	return change, nil
}

// IngestLinxSale processes one inbound sale from Linx. A payload without
// items is rejected wholesale; per-item problems (unknown barcode, bad
// quantity, a failed stock write) are captured in that item's result and do
// not abort the rest of the sale. Exactly one audit record is written for
// the whole sale either way.
func (s *Service) IngestLinxSale(ctx context.Context, sale domain.LinxSalePayload) ([]domain.SaleItemResult, error) {
	raw, _ := json.Marshal(sale)

	if len(sale.Items) == 0 {
		detail := "sale payload has no items"
		s.audit.Record(ctx, domain.SyncKindInboundSale, domain.SystemLinx, domain.SystemCaminhoCerto, raw, domain.SyncStatusError, detail)
		return nil, fmt.Errorf("%w: %s", store.ErrInvalidPayload, detail)
	}

	source := strings.TrimSpace(sale.Source)
	if source == "" {
		source = domain.SystemLinx
	}

	results := make([]domain.SaleItemResult, 0, len(sale.Items))
	for _, item := range sale.Items {
		results = append(results, s.ingestSaleItem(ctx, item, source))
	}

	s.audit.Record(ctx, domain.SyncKindInboundSale, domain.SystemLinx, domain.SystemCaminhoCerto, raw, domain.SyncStatusProcessed, "")
	s.logger.Info("inbound sale processed",
		zap.String("source", source),
		zap.Int("items", len(results)))

	return results, nil
}

func (s *Service) ingestSaleItem(ctx context.Context, item domain.LinxSaleItem, source string) domain.SaleItemResult {
	result := domain.SaleItemResult{
		Barcode:     item.Barcode,
		ProductName: item.ProductName,
	}

	if strings.TrimSpace(item.Barcode) == "" || item.Quantity < 1 {
		result.Status = domain.ItemStatusError
		result.ErrorDetail = "item requires a barcode and a positive quantity"
		return result
	}

	product, err := s.LookupByBarcode(ctx, item.Barcode)
	if errors.Is(err, store.ErrNotFound) {
		s.logger.Warn("product not found for inbound sale item",
			zap.String("barcode", item.Barcode),
			zap.String("product_name", item.ProductName))
		result.Status = domain.ItemStatusProductNotFound
		result.ErrorDetail = fmt.Sprintf("product %s not found", item.Barcode)
		return result
	}
	if err != nil {
		result.Status = domain.ItemStatusError
		result.ErrorDetail = err.Error()
		return result
	}

	result.ProductName = product.Name
	change, err := s.ApplyStockDelta(ctx, product.ID, -item.Quantity, domain.MovementOutbound, "Linx sale - "+source)
	if err != nil {
		result.Status = domain.ItemStatusError
		result.ErrorDetail = err.Error()
		return result
	}

	result.Status = domain.ItemStatusSuccess
	result.PreviousStock = &change.PreviousQty
	result.NewStock = &change.NewQty
	return result
}

// QueueSale attempts immediate delivery of a local sale to Linx and falls
// back to the durable pending queue on failure. The returned bool reports
// whether the sale was delivered right away; an error means the sale could
// not even be queued.
func (s *Service) QueueSale(ctx context.Context, sale json.RawMessage) (bool, error) {
	_, err := s.linx.Deliver(ctx, sale)
	if err == nil {
		s.audit.Record(ctx, domain.SyncKindOutboundSale, domain.SystemCaminhoCerto, domain.SystemLinx, sale, domain.SyncStatusProcessed, "")
		s.logger.Info("sale delivered to linx immediately")
		return true, nil
	}

	s.logger.Warn("immediate delivery failed, queueing sale", zap.Error(err))
	if _, qErr := s.repo.EnqueuePendingSale(ctx, sale, s.policy.MaxAttempts, time.Now().UTC()); qErr != nil {
		return false, fmt.Errorf("enqueue pending sale: %w", qErr)
	}
	return false, nil
}

// ProcessPendingSales runs one scheduler tick: every due item gets exactly
// one delivery attempt, in creation order. Delivery failures feed the retry
// state machine; persistence failures leave the item in its prior state for
// the next tick.
func (s *Service) ProcessPendingSales(ctx context.Context) {
	due, err := s.repo.ListDuePendingSales(ctx, time.Now().UTC())
	if err != nil {
		s.logger.Error("failed to list due pending sales", zap.Error(err))
		return
	}

	for _, item := range due {
		if ctx.Err() != nil {
			return
		}
		s.processPendingSale(ctx, item)
	}
}

func (s *Service) processPendingSale(ctx context.Context, item domain.PendingSale) {
	_, deliverErr := s.linx.Deliver(ctx, item.Payload)
	if deliverErr == nil {
		if err := s.repo.DeletePendingSale(ctx, item.ID); err != nil {
			// The sale was delivered but the row survived; the next tick
			// redelivers. At-least-once, not exactly-once.
			s.logger.Error("failed to remove delivered sale from queue",
				zap.String("id", item.ID),
				zap.Error(err))
			return
		}
		s.audit.Record(ctx, domain.SyncKindOutboundSale, domain.SystemCaminhoCerto, domain.SystemLinx, item.Payload, domain.SyncStatusProcessed, "")
		s.logger.Info("queued sale delivered to linx",
			zap.String("id", item.ID),
			zap.Int("attempts", item.Attempts))
		return
	}

	step := s.policy.Advance(item.Attempts, time.Now().UTC())
	switch step.Kind {
	case StepFail:
		if err := s.repo.DeletePendingSale(ctx, item.ID); err != nil {
			s.logger.Error("failed to remove terminally failed sale from queue",
				zap.String("id", item.ID),
				zap.Error(err))
			return
		}
		s.audit.Record(ctx, domain.SyncKindOutboundSale, domain.SystemCaminhoCerto, domain.SystemLinx, item.Payload, domain.SyncStatusError, deliverErr.Error())
		s.logger.Error("sale dropped after exhausting delivery attempts",
			zap.String("id", item.ID),
			zap.Int("attempts", step.Attempts),
			zap.Error(deliverErr))
	case StepRetry:
		if err := s.repo.UpdatePendingSale(ctx, item.ID, step.Attempts, step.NextRetryAt); err != nil {
			s.logger.Error("failed to reschedule pending sale",
				zap.String("id", item.ID),
				zap.Error(err))
			return
		}
		s.logger.Warn("delivery failed, retry scheduled",
			zap.String("id", item.ID),
			zap.Int("attempts", step.Attempts),
			zap.Time("next_retry_at", step.NextRetryAt),
			zap.Error(deliverErr))
	}
}

func (s *Service) PendingCount(ctx context.Context) (int, error) {
	return s.repo.CountPendingSales(ctx)
}

func (s *Service) ListPendingSales(ctx context.Context, limit int) ([]domain.PendingSale, error) {
	return s.repo.ListPendingSales(ctx, limit)
}

func (s *Service) ListSyncRecords(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	return s.repo.ListSyncRecords(ctx, limit)
}
