package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store"
)

type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// EnsureSchema creates the sync tables when they do not exist yet. The
// products table is owned by the main retail system and is expected to be
// present already; only this service's own tables are bootstrapped here.
func (s *Store) EnsureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS stock_movements (
			id UUID PRIMARY KEY,
			product_id UUID NOT NULL,
			delta INTEGER NOT NULL,
			kind TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stock_movements_product_id ON stock_movements(product_id)`,
		`CREATE TABLE IF NOT EXISTS sync_records (
			id UUID PRIMARY KEY,
			kind TEXT NOT NULL,
			origin TEXT NOT NULL,
			destination TEXT NOT NULL,
			payload JSONB NOT NULL,
			status TEXT NOT NULL DEFAULT 'processed',
			error_detail TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_kind ON sync_records(kind)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_records_created_at ON sync_records(created_at)`,
		`CREATE TABLE IF NOT EXISTS pending_sales (
			id UUID PRIMARY KEY,
			payload JSONB NOT NULL,
			attempts INTEGER NOT NULL DEFAULT 0,
			max_attempts INTEGER NOT NULL DEFAULT 5,
			next_retry_at TIMESTAMPTZ NOT NULL DEFAULT now(),
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_pending_sales_next_retry_at ON pending_sales(next_retry_at)`,
		`CREATE TABLE IF NOT EXISTS whatsapp_instances (
			instance_name TEXT PRIMARY KEY,
			connection_status TEXT NOT NULL,
			last_update TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS whatsapp_messages (
			message_id TEXT PRIMARY KEY,
			instance_name TEXT NOT NULL,
			from_number TEXT NOT NULL DEFAULT '',
			body TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'sent',
			message_ts TIMESTAMPTZ,
			raw JSONB,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS users (
			username TEXT PRIMARY KEY,
			password TEXT NOT NULL,
			role TEXT NOT NULL DEFAULT 'admin',
			active BOOLEAN NOT NULL DEFAULT true,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) GetProductByBarcode(ctx context.Context, barcode string) (*domain.Product, error) {
	var product domain.Product
	err := s.db.QueryRowContext(ctx, `
		SELECT id, barcode, name, stock_qty, created_at
		FROM products
		WHERE barcode = $1
	`, barcode).Scan(&product.ID, &product.Barcode, &product.Name, &product.StockQty, &product.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	product.CreatedAt = product.CreatedAt.UTC()
	return &product, nil
}

func (s *Store) CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error) {
	if strings.TrimSpace(product.Name) == "" || product.StockQty < 0 {
		return nil, store.ErrInvalidPayload
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO products (id, barcode, name, stock_qty, created_at, updated_at)
		VALUES ($1, NULLIF($2,''), $3, $4, $5, now())
	`, product.ID, product.Barcode, product.Name, product.StockQty, product.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, store.ErrInvalidPayload
		}
		return nil, err
	}

	created := product
	return &created, nil
}

func (s *Store) ApplyStockDelta(ctx context.Context, productID string, delta int, kind string, reason string) (*domain.StockChange, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var previous int
	err = tx.QueryRowContext(ctx, `
		SELECT stock_qty FROM products WHERE id = $1 FOR UPDATE
	`, productID).Scan(&previous)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	next := previous + delta
	if next < 0 {
		next = 0
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE products SET stock_qty = $2, updated_at = now() WHERE id = $1
	`, productID, next)
	if err != nil {
		return nil, err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO stock_movements (id, product_id, delta, kind, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, now())
	`, uuid.NewString(), productID, delta, kind, reason)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &domain.StockChange{PreviousQty: previous, NewQty: next}, nil
}

func (s *Store) ListStockMovements(ctx context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, product_id, delta, kind, reason, created_at
		FROM stock_movements
		WHERE product_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movements := make([]domain.StockMovement, 0, limit)
	for rows.Next() {
		var m domain.StockMovement
		if err := rows.Scan(&m.ID, &m.ProductID, &m.Delta, &m.Kind, &m.Reason, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (s *Store) CreateSyncRecord(ctx context.Context, record domain.SyncRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	payload := record.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_records (id, kind, origin, destination, payload, status, error_detail, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7,''), now())
	`, record.ID, record.Kind, record.Origin, record.Destination, []byte(payload), record.Status, record.ErrorDetail)
	return err
}

func (s *Store) ListSyncRecords(ctx context.Context, limit int) ([]domain.SyncRecord, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, kind, origin, destination, payload, COALESCE(status,''), COALESCE(error_detail,''), created_at
		FROM sync_records
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]domain.SyncRecord, 0, limit)
	for rows.Next() {
		var rec domain.SyncRecord
		var payload []byte
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Origin, &rec.Destination, &payload, &rec.Status, &rec.ErrorDetail, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		rec.CreatedAt = rec.CreatedAt.UTC()
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *Store) EnqueuePendingSale(ctx context.Context, payload json.RawMessage, maxAttempts int, nextRetryAt time.Time) (*domain.PendingSale, error) {
	if len(payload) == 0 || maxAttempts < 1 {
		return nil, store.ErrInvalidPayload
	}

	item := domain.PendingSale{
		ID:          uuid.NewString(),
		Payload:     payload,
		Attempts:    0,
		MaxAttempts: maxAttempts,
		NextRetryAt: nextRetryAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_sales (id, payload, attempts, max_attempts, next_retry_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, item.ID, []byte(item.Payload), item.Attempts, item.MaxAttempts, item.NextRetryAt, item.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListDuePendingSales(ctx context.Context, now time.Time) ([]domain.PendingSale, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, attempts, max_attempts, next_retry_at, created_at
		FROM pending_sales
		WHERE next_retry_at <= $1 AND attempts < max_attempts
		ORDER BY created_at
	`, now.UTC())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPendingSales(rows)
}

func (s *Store) ListPendingSales(ctx context.Context, limit int) ([]domain.PendingSale, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, payload, attempts, max_attempts, next_retry_at, created_at
		FROM pending_sales
		ORDER BY created_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPendingSales(rows)
}

func (s *Store) CountPendingSales(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM pending_sales`).Scan(&count)
	return count, err
}

func (s *Store) UpdatePendingSale(ctx context.Context, id string, attempts int, nextRetryAt time.Time) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE pending_sales SET attempts = $2, next_retry_at = $3 WHERE id = $1
	`, id, attempts, nextRetryAt.UTC())
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeletePendingSale(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pending_sales WHERE id = $1`, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) UpsertMessagingInstance(ctx context.Context, instance domain.MessagingInstance) error {
	if strings.TrimSpace(instance.InstanceName) == "" {
		return store.ErrInvalidPayload
	}
	if instance.LastUpdate.IsZero() {
		instance.LastUpdate = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whatsapp_instances (instance_name, connection_status, last_update)
		VALUES ($1, $2, $3)
		ON CONFLICT (instance_name)
		DO UPDATE SET connection_status = EXCLUDED.connection_status, last_update = EXCLUDED.last_update
	`, instance.InstanceName, instance.ConnectionStatus, instance.LastUpdate)
	if isUndefinedTable(err) {
		return nil
	}
	return err
}

func (s *Store) GetMessagingInstance(ctx context.Context, instanceName string) (*domain.MessagingInstance, error) {
	var instance domain.MessagingInstance
	err := s.db.QueryRowContext(ctx, `
		SELECT instance_name, connection_status, last_update
		FROM whatsapp_instances
		WHERE instance_name = $1
	`, instanceName).Scan(&instance.InstanceName, &instance.ConnectionStatus, &instance.LastUpdate)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	instance.LastUpdate = instance.LastUpdate.UTC()
	return &instance, nil
}

func (s *Store) SaveMessage(ctx context.Context, message domain.WhatsAppMessage) error {
	if strings.TrimSpace(message.MessageID) == "" {
		return store.ErrInvalidPayload
	}
	raw := message.Raw
	if len(raw) == 0 {
		raw = json.RawMessage("null")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO whatsapp_messages (message_id, instance_name, from_number, body, type, status, message_ts, raw, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		ON CONFLICT (message_id)
		DO UPDATE SET status = EXCLUDED.status, raw = EXCLUDED.raw, updated_at = now()
	`, message.MessageID, message.InstanceName, message.FromNumber, message.Body, message.Type, message.Status, nullTime(message.Timestamp), []byte(raw))
	if isUndefinedTable(err) {
		// Message records are diagnostic only; a deployment without the
		// table is fine.
		return nil
	}
	return err
}

func (s *Store) UpdateMessageStatus(ctx context.Context, messageID string, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE whatsapp_messages SET status = $2, updated_at = now() WHERE message_id = $1
	`, messageID, status)
	if isUndefinedTable(err) {
		return nil
	}
	// Zero rows affected is a normal skip: the record may never have been
	// written.
	return err
}

func (s *Store) GetMessage(ctx context.Context, messageID string) (*domain.WhatsAppMessage, error) {
	var message domain.WhatsAppMessage
	var ts sql.NullTime
	var raw []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT message_id, instance_name, from_number, body, type, status, message_ts, raw
		FROM whatsapp_messages
		WHERE message_id = $1
	`, messageID).Scan(&message.MessageID, &message.InstanceName, &message.FromNumber, &message.Body, &message.Type, &message.Status, &ts, &raw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	if ts.Valid {
		message.Timestamp = ts.Time.UTC()
	}
	message.Raw = raw
	return &message, nil
}

func (s *Store) CreateUser(ctx context.Context, user domain.UserAccount) error {
	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidPayload
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password, role, active, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, username, user.Password, user.Role, user.Active, user.CreatedAt)
	if isUniqueViolation(err) {
		return store.ErrInvalidPayload
	}
	return err
}

func (s *Store) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, password, role, active, created_at
		FROM users
		ORDER BY username
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]domain.UserAccount, 0, 8)
	for rows.Next() {
		var user domain.UserAccount
		if err := rows.Scan(&user.Username, &user.Password, &user.Role, &user.Active, &user.CreatedAt); err != nil {
			return nil, err
		}
		user.CreatedAt = user.CreatedAt.UTC()
		users = append(users, user)
	}
	return users, rows.Err()
}

func (s *Store) UpdateUserPassword(ctx context.Context, username string, password string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE users SET password = $2 WHERE username = $1
	`, username, password)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func scanPendingSales(rows *sql.Rows) ([]domain.PendingSale, error) {
	items := make([]domain.PendingSale, 0, 16)
	for rows.Next() {
		var item domain.PendingSale
		var payload []byte
		if err := rows.Scan(&item.ID, &payload, &item.Attempts, &item.MaxAttempts, &item.NextRetryAt, &item.CreatedAt); err != nil {
			return nil, err
		}
		item.Payload = payload
		item.NextRetryAt = item.NextRetryAt.UTC()
		item.CreatedAt = item.CreatedAt.UTC()
		items = append(items, item)
	}
	return items, rows.Err()
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P01"
	}
	return false
}
