package storage

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gcs "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/iterator"

	"github.com/Thaynan-souza/raphietro-atelier/internal/platform/requestctx"
	"github.com/Thaynan-souza/raphietro-atelier/internal/services"
)

const defaultDownloadExpiry = 15 * time.Minute

// ErrReceiptNotArchived is returned when an order has never been printed. It
// matches services.ErrReceiptNotPrinted.
var ErrReceiptNotArchived = fmt.Errorf("storage: receipt not archived: %w", services.ErrReceiptNotPrinted)

// objectStore is the slice of Cloud Storage the archive needs.
type objectStore interface {
	Put(ctx context.Context, bucket, object string, body []byte, metadata map[string]string) error
	LastUnder(ctx context.Context, bucket, prefix string) (string, error)
	SignedURL(bucket, object string, expires time.Time) (string, error)
}

// ReceiptArchive keeps a copy of every printed receipt in a bucket. It is a
// print surface: the order builder and the receipt endpoint print through it.
type ReceiptArchive struct {
	store  objectStore
	bucket string
	root   string
	expiry time.Duration
	now    func() time.Time
}

// ArchiveOption customises ReceiptArchive.
type ArchiveOption func(*ReceiptArchive)

// WithDownloadExpiry sets how long signed receipt links stay valid.
func WithDownloadExpiry(d time.Duration) ArchiveOption {
	return func(a *ReceiptArchive) {
		if d > 0 {
			a.expiry = d
		}
	}
}

// WithArchiveClock injects the clock used for link expiry.
func WithArchiveClock(now func() time.Time) ArchiveOption {
	return func(a *ReceiptArchive) {
		if now != nil {
			a.now = now
		}
	}
}

// NewReceiptArchive builds an archive on top of a Cloud Storage client.
func NewReceiptArchive(client *gcs.Client, bucket, root string, opts ...ArchiveOption) (*ReceiptArchive, error) {
	if client == nil {
		return nil, errors.New("storage: client is required")
	}
	return newReceiptArchive(gcsObjectStore{client: client}, bucket, root, opts...)
}

func newReceiptArchive(store objectStore, bucket, root string, opts ...ArchiveOption) (*ReceiptArchive, error) {
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	a := &ReceiptArchive{
		store:  store,
		bucket: bucket,
		root:   root,
		expiry: defaultDownloadExpiry,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a, nil
}

// Print stores the rendered receipt under the order's folder.
func (a *ReceiptArchive) Print(ctx context.Context, job services.PrintJob) error {
	printedAt := job.PrintedAt
	if printedAt.IsZero() {
		printedAt = a.now()
	}
	object, err := ReceiptObjectPath(a.root, job.OrderID, printedAt)
	if err != nil {
		return err
	}
	metadata := map[string]string{
		"orderId": job.OrderID,
		"shortId": job.ShortID,
	}
	if err := a.store.Put(ctx, a.bucket, object, []byte(job.Document.HTML), metadata); err != nil {
		return fmt.Errorf("storage: archive receipt %s: %w", job.OrderID, err)
	}
	requestctx.Logger(ctx).Info("receipt archived",
		zap.String("order_id", job.OrderID),
		zap.String("object", object),
	)
	return nil
}

// LatestReceiptURL returns a short-lived link to the last printed receipt of orderID.
func (a *ReceiptArchive) LatestReceiptURL(ctx context.Context, orderID string) (string, time.Time, error) {
	prefix, err := ReceiptPrefix(a.root, orderID)
	if err != nil {
		return "", time.Time{}, err
	}
	object, err := a.store.LastUnder(ctx, a.bucket, prefix)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: list receipts for %s: %w", orderID, err)
	}
	if object == "" {
		return "", time.Time{}, ErrReceiptNotArchived
	}
	expires := a.now().Add(a.expiry)
	url, err := a.store.SignedURL(a.bucket, object, expires)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("storage: sign receipt url: %w", err)
	}
	return url, expires, nil
}

type gcsObjectStore struct {
	client *gcs.Client
}

func (s gcsObjectStore) Put(ctx context.Context, bucket, object string, body []byte, metadata map[string]string) error {
	w := s.client.Bucket(bucket).Object(object).NewWriter(ctx)
	w.ContentType = "text/html; charset=utf-8"
	w.CacheControl = "private, max-age=0"
	w.Metadata = metadata
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (s gcsObjectStore) LastUnder(ctx context.Context, bucket, prefix string) (string, error) {
	it := s.client.Bucket(bucket).Objects(ctx, &gcs.Query{Prefix: prefix})
	last := ""
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return last, nil
		}
		if err != nil {
			return "", err
		}
		if attrs.Name > last {
			last = attrs.Name
		}
	}
}

func (s gcsObjectStore) SignedURL(bucket, object string, expires time.Time) (string, error) {
	return s.client.Bucket(bucket).SignedURL(object, &gcs.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: expires,
		Scheme:  gcs.SigningSchemeV4,
	})
}
