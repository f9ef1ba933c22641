package services

import (
	"context"
	"errors"
	"time"

	"github.com/Thaynan-souza/raphietro-atelier/internal/domain"
	"github.com/Thaynan-souza/raphietro-atelier/internal/receipt"
)

// ErrReceiptNotPrinted indicates no receipt has been printed for the order.
var ErrReceiptNotPrinted = errors.New("receipt: not printed")

// PrintJob is one receipt handed to a print surface.
type PrintJob struct {
	OrderID   string
	ShortID   string
	Document  receipt.Document
	PrintedAt time.Time
}

// PrintSurface receives rendered receipts.
type PrintSurface interface {
	Print(ctx context.Context, job PrintJob) error
}

// ReceiptRenderer renders an order snapshot.
type ReceiptRenderer interface {
	Render(order domain.Order) (receipt.Document, error)
}
