package domain

import (
	"encoding/json"
	"time"
)

type Product struct {
	ID        string    `json:"id"`
	Barcode   string    `json:"barcode,omitempty"`
	Name      string    `json:"name"`
	StockQty  int       `json:"stock_qty"`
	CreatedAt time.Time `json:"created_at"`
}

// StockMovement is an append-only ledger entry. The cached Product.StockQty
// must always equal the sum of movement deltas since creation; both are
// written in the same store transaction.
type StockMovement struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Delta     int       `json:"delta"`
	Kind      string    `json:"kind"`
	Reason    string    `json:"reason"`
	CreatedAt time.Time `json:"created_at"`
}

// StockChange reports the cached quantity before and after a delta was applied.
type StockChange struct {
	PreviousQty int `json:"previous_qty"`
	NewQty      int `json:"new_qty"`
}

type LinxSaleItem struct {
	Barcode     string `json:"barcode"`
	Quantity    int    `json:"quantity"`
	ProductName string `json:"productName"`
}

type LinxSalePayload struct {
	Items  []LinxSaleItem `json:"items"`
	Source string         `json:"source"`
}

type SaleItemResult struct {
	Barcode       string `json:"barcode"`
	ProductName   string `json:"productName,omitempty"`
	Status        string `json:"status"`
	PreviousStock *int   `json:"previousStock,omitempty"`
	NewStock      *int   `json:"newStock,omitempty"`
	ErrorDetail   string `json:"errorDetail,omitempty"`
}

type LinxSaleResponse struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Results []SaleItemResult `json:"resultsPerItem"`
}

// PendingSale is a locally-created sale waiting for delivery to Linx.
// Attempts only grow; the row is deleted exactly once, on terminal delivery
// or terminal failure.
type PendingSale struct {
	ID          string          `json:"id"`
	Payload     json.RawMessage `json:"payload"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	NextRetryAt time.Time       `json:"next_retry_at"`
	CreatedAt   time.Time       `json:"created_at"`
}

// SyncRecord is one synchronization attempt's outcome, append-only.
type SyncRecord struct {
	ID          string          `json:"id"`
	Kind        string          `json:"kind"`
	Origin      string          `json:"origin"`
	Destination string          `json:"destination"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	ErrorDetail string          `json:"error_detail,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// MessagingInstance holds the latest known connection state of an Evolution
// API instance. One row per instance, last write wins.
type MessagingInstance struct {
	InstanceName     string    `json:"instance_name"`
	ConnectionStatus string    `json:"connection_status"`
	LastUpdate       time.Time `json:"last_update"`
}

// WhatsAppMessage is a diagnostic record of a provider message. Best-effort:
// a missing record or table is tolerated by every writer.
type WhatsAppMessage struct {
	MessageID    string          `json:"message_id"`
	InstanceName string          `json:"instance_name"`
	FromNumber   string          `json:"from_number"`
	Body         string          `json:"body"`
	Type         string          `json:"type"`
	Status       string          `json:"status"`
	Timestamp    time.Time       `json:"timestamp"`
	Raw          json.RawMessage `json:"raw,omitempty"`
}

type WebhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type WebhookAck struct {
	Success  bool   `json:"success"`
	Message  string `json:"message,omitempty"`
	Event    string `json:"event,omitempty"`
	Instance string `json:"instance,omitempty"`
	Error    string `json:"error,omitempty"`
}

type PaymentTally struct {
	Count  int     `json:"count"`
	Amount float64 `json:"amount"`
}

type ShiftReportRequest struct {
	User           string                  `json:"user"`
	StartTime      string                  `json:"startTime"`
	EndTime        string                  `json:"endTime"`
	TotalSales     int                     `json:"totalSales"`
	AverageTicket  float64                 `json:"averageTicket"`
	TotalAmount    float64                 `json:"totalAmount"`
	PaymentSummary map[string]PaymentTally `json:"paymentSummary"`
	ReceiptNumber  string                  `json:"receiptNumber"`
	WhatsAppNumber string                  `json:"whatsapp_number"`
	ShiftDuration  string                  `json:"shiftDuration"`
}

type ClockNotificationRequest struct {
	WhatsAppNumber string `json:"whatsapp_number"`
	UserName       string `json:"user_name"`
	ClockTime      string `json:"clock_time"`
	Type           string `json:"type"`
	ClockIn        string `json:"clock_in,omitempty"`
	ClockOut       string `json:"clock_out,omitempty"`
	TotalHours     string `json:"total_hours,omitempty"`
}

type SendMessageResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	MessageID string `json:"messageId,omitempty"`
	Error     string `json:"error,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

// UserAccount is an internal persistence model for auth credentials.
type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

const (
	MovementInbound    = "inbound"
	MovementOutbound   = "outbound"
	MovementAdjustment = "adjustment"
	MovementWriteOff   = "write-off"
)

const (
	SyncKindInboundSale  = "inbound-sale"
	SyncKindOutboundSale = "outbound-sale"

	SyncStatusProcessed = "processed"
	SyncStatusError     = "error"

	SystemLinx         = "linx"
	SystemCaminhoCerto = "caminhocerto"
)

const (
	ItemStatusSuccess         = "success"
	ItemStatusProductNotFound = "product_not_found"
	ItemStatusError           = "error"
)

const (
	ClockTypeIn      = "clock_in"
	ClockTypeOut     = "clock_out"
	ClockTypeSummary = "summary"
)
