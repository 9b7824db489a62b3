package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"caminhocerto/syncserver/internal/domain"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrInvalidPayload = errors.New("invalid payload")
)

type Repository interface {
	// Products and the stock-movement ledger.
	GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// ApplyStockDelta mutates the cached quantity and appends the matching
	// StockMovement as one atomic unit. A reducing delta larger than the
	// current quantity clamps at zero.
	ApplyStockDelta(ctx context.Context, productID string, delta int, kind string, reason string) (*domain.StockChange, error)
	ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error)

	// Sync audit trail.
	CreateSyncRecord(ctx context.Context, record domain.SyncRecord) error
	ListSyncRecords(ctx context.Context, limit int) ([]domain.SyncRecord, error)

	// Pending outbound deliveries.
	EnqueuePendingSale(ctx context.Context, payload json.RawMessage, maxAttempts int, nextRetryAt time.Time) (*domain.PendingSale, error)
	ListDuePendingSales(ctx context.Context, now time.Time) ([]domain.PendingSale, error)
	ListPendingSales(ctx context.Context, limit int) ([]domain.PendingSale, error)
	CountPendingSales(ctx context.Context) (int, error)
	UpdatePendingSale(ctx context.Context, id string, attempts int, nextRetryAt time.Time) error
	DeletePendingSale(ctx context.Context, id string) error

	// Evolution API derived state.
	UpsertMessagingInstance(ctx context.Context, instance domain.MessagingInstance) error
	GetMessagingInstance(ctx context.Context, instanceName string) (*domain.MessagingInstance, error)
	SaveMessage(ctx context.Context, message domain.WhatsAppMessage) error
	UpdateMessageStatus(ctx context.Context, messageID string, status string) error
	GetMessage(ctx context.Context, messageID string) (*domain.WhatsAppMessage, error)

	// Auth accounts.
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
