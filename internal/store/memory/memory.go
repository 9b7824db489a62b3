package memory

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"caminhocerto/syncserver/internal/domain"
	"caminhocerto/syncserver/internal/store"
)

type Store struct {
	mu                sync.RWMutex
	productsByID      map[string]domain.Product
	productsByBarcode map[string]string
	movements         map[string][]domain.StockMovement
	syncRecords       []domain.SyncRecord
	pendingSales      []domain.PendingSale
	instancesByName   map[string]domain.MessagingInstance
	messagesByID      map[string]domain.WhatsAppMessage
	usersByUsername   map[string]domain.UserAccount
}

// seedUsers builds the initial in-memory admin account for dev/demo mode.
// The password is read from SEED_ADMIN_PASSWORD; if unset a hardcoded dev
// default is used with a warning. Production deployments use PostgreSQL
// (DATABASE_URL set) and never touch this path.
func seedUsers() map[string]domain.UserAccount {
	adminPwd := os.Getenv("SEED_ADMIN_PASSWORD")
	if adminPwd == "" {
		adminPwd = "admin123"
		log.Println("[memory-store] WARNING: using default dev admin credential. Set SEED_ADMIN_PASSWORD to override.")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(adminPwd), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("[memory-store] failed to hash seed admin password: %v", err)
	}

	return map[string]domain.UserAccount{
		"admin": {
			Username:  "admin",
			Password:  string(hash),
			Role:      "admin",
			Active:    true,
			CreatedAt: time.Now().UTC(),
		},
	}
}

func New() *Store {
	return &Store{
		productsByID:      make(map[string]domain.Product),
		productsByBarcode: make(map[string]string),
		movements:         make(map[string][]domain.StockMovement),
		syncRecords:       make([]domain.SyncRecord, 0, 128),
		pendingSales:      make([]domain.PendingSale, 0, 16),
		instancesByName:   make(map[string]domain.MessagingInstance),
		messagesByID:      make(map[string]domain.WhatsAppMessage),
		usersByUsername:   seedUsers(),
	}
}

func NewSeeded() *Store {
	s := New()

	now := time.Now().UTC()
	products := []domain.Product{
		{Barcode: "7894900011517", Name: "Refrigerante Cola 350ml", StockQty: 120},
		{Barcode: "7891000100103", Name: "Leite UHT 1L", StockQty: 80},
		{Barcode: "7891910000197", Name: "Acucar Refinado 1kg", StockQty: 64},
		{Barcode: "7896005800057", Name: "Cafe Torrado 500g", StockQty: 48},
		{Barcode: "7891991010856", Name: "Agua Mineral 500ml", StockQty: 200},
		{Barcode: "7892840812850", Name: "Salgadinho 90g", StockQty: 96},
		{Barcode: "7891048038407", Name: "Chocolate Barra 90g", StockQty: 72},
		{Barcode: "7896004000502", Name: "Biscoito Recheado 130g", StockQty: 110},
	}
	for _, p := range products {
		p.ID = uuid.NewString()
		p.CreatedAt = now
		s.productsByID[p.ID] = p
		s.productsByBarcode[p.Barcode] = p.ID
	}

	return s
}

func (s *Store) GetProductByBarcode(_ context.Context, barcode string) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.productsByBarcode[barcode]
	if !ok {
		return nil, store.ErrNotFound
	}
	product := s.productsByID[id]
	return &product, nil
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (*domain.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(product.Name) == "" || product.StockQty < 0 {
		return nil, store.ErrInvalidPayload
	}
	if product.Barcode != "" {
		if _, exists := s.productsByBarcode[product.Barcode]; exists {
			return nil, store.ErrInvalidPayload
		}
	}
	if product.ID == "" {
		product.ID = uuid.NewString()
	}
	if product.CreatedAt.IsZero() {
		product.CreatedAt = time.Now().UTC()
	}

	s.productsByID[product.ID] = product
	if product.Barcode != "" {
		s.productsByBarcode[product.Barcode] = product.ID
	}
	created := product
	return &created, nil
}

func (s *Store) ApplyStockDelta(_ context.Context, productID string, delta int, kind string, reason string) (*domain.StockChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	product, ok := s.productsByID[productID]
	if !ok {
		return nil, store.ErrNotFound
	}

	previous := product.StockQty
	next := previous + delta
	if next < 0 {
		next = 0
	}
	product.StockQty = next
	s.productsByID[productID] = product

	s.movements[productID] = append(s.movements[productID], domain.StockMovement{
		ID:        uuid.NewString(),
		ProductID: productID,
		Delta:     delta,
		Kind:      kind,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	})

	return &domain.StockChange{PreviousQty: previous, NewQty: next}, nil
}

func (s *Store) ListStockMovements(_ context.Context, productID string, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	movements := s.movements[productID]
	start := 0
	if len(movements) > limit {
		start = len(movements) - limit
	}
	result := make([]domain.StockMovement, len(movements)-start)
	copy(result, movements[start:])
	return result, nil
}

func (s *Store) CreateSyncRecord(_ context.Context, record domain.SyncRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.syncRecords = append(s.syncRecords, record)
	return nil
}

func (s *Store) ListSyncRecords(_ context.Context, limit int) ([]domain.SyncRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	result := make([]domain.SyncRecord, 0, limit)
	for i := len(s.syncRecords) - 1; i >= 0 && len(result) < limit; i-- {
		result = append(result, s.syncRecords[i])
	}
	return result, nil
}

func (s *Store) EnqueuePendingSale(_ context.Context, payload json.RawMessage, maxAttempts int, nextRetryAt time.Time) (*domain.PendingSale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(payload) == 0 || maxAttempts < 1 {
		return nil, store.ErrInvalidPayload
	}

	item := domain.PendingSale{
		ID:          uuid.NewString(),
		Payload:     append(json.RawMessage(nil), payload...),
		Attempts:    0,
		MaxAttempts: maxAttempts,
		NextRetryAt: nextRetryAt.UTC(),
		CreatedAt:   time.Now().UTC(),
	}
	s.pendingSales = append(s.pendingSales, item)
	created := item
	return &created, nil
}

func (s *Store) ListDuePendingSales(_ context.Context, now time.Time) ([]domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]domain.PendingSale, 0, len(s.pendingSales))
	for _, item := range s.pendingSales {
		if !item.NextRetryAt.After(now) && item.Attempts < item.MaxAttempts {
			due = append(due, item)
		}
	}
	slices.SortFunc(due, func(a, b domain.PendingSale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return due, nil
}

func (s *Store) ListPendingSales(_ context.Context, limit int) ([]domain.PendingSale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit < 1 {
		limit = 50
	}
	result := make([]domain.PendingSale, 0, limit)
	for _, item := range s.pendingSales {
		if len(result) == limit {
			break
		}
		result = append(result, item)
	}
	slices.SortFunc(result, func(a, b domain.PendingSale) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return result, nil
}

func (s *Store) CountPendingSales(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pendingSales), nil
}

func (s *Store) UpdatePendingSale(_ context.Context, id string, attempts int, nextRetryAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.pendingSales {
		if item.ID == id {
			item.Attempts = attempts
			item.NextRetryAt = nextRetryAt.UTC()
			s.pendingSales[i] = item
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) DeletePendingSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, item := range s.pendingSales {
		if item.ID == id {
			s.pendingSales = append(s.pendingSales[:i], s.pendingSales[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (s *Store) UpsertMessagingInstance(_ context.Context, instance domain.MessagingInstance) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(instance.InstanceName) == "" {
		return store.ErrInvalidPayload
	}
	if instance.LastUpdate.IsZero() {
		instance.LastUpdate = time.Now().UTC()
	}
	s.instancesByName[instance.InstanceName] = instance
	return nil
}

func (s *Store) GetMessagingInstance(_ context.Context, instanceName string) (*domain.MessagingInstance, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	instance, ok := s.instancesByName[instanceName]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &instance, nil
}

func (s *Store) SaveMessage(_ context.Context, message domain.WhatsAppMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if strings.TrimSpace(message.MessageID) == "" {
		return store.ErrInvalidPayload
	}
	s.messagesByID[message.MessageID] = message
	return nil
}

func (s *Store) UpdateMessageStatus(_ context.Context, messageID string, status string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	message, ok := s.messagesByID[messageID]
	if !ok {
		// Message records are diagnostic; an absent record is a normal skip.
		return nil
	}
	message.Status = status
	s.messagesByID[messageID] = message
	return nil
}

func (s *Store) GetMessage(_ context.Context, messageID string) (*domain.WhatsAppMessage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	message, ok := s.messagesByID[messageID]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &message, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	username := strings.ToLower(strings.TrimSpace(user.Username))
	if username == "" {
		return store.ErrInvalidPayload
	}
	if _, exists := s.usersByUsername[username]; exists {
		return store.ErrInvalidPayload
	}
	user.Username = username
	s.usersByUsername[username] = user
	return nil
}

func (s *Store) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	users := make([]domain.UserAccount, 0, len(s.usersByUsername))
	for _, user := range s.usersByUsername {
		users = append(users, user)
	}
	slices.SortFunc(users, func(a, b domain.UserAccount) int {
		return strings.Compare(a.Username, b.Username)
	})
	return users, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByUsername[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByUsername[username] = user
	return nil
}
