package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/academy/pkg/async"
)

// ObjectStore is where archived invoices are written
type ObjectStore interface {
	PutObject(ctx context.Context, key string, content []byte, contentType string) error
}

type invoiceGetter interface {
	Get(ctx context.Context, id int64) (*Invoice, error)
}

// Archiver keeps an immutable JSON copy of issued invoices in object storage
type Archiver struct {
	objects ObjectStore
	timeout time.Duration
	tasks   async.Group
}

// NewArchiver creates an archiver writing to objects
func NewArchiver(objects ObjectStore) *Archiver {
	return &Archiver{objects: objects, timeout: 30 * time.Second}
}

// ArchiveKey is the object key for inv
func ArchiveKey(inv *Invoice) string {
	return fmt.Sprintf("invoices/%d/%s/%s.json", inv.OrgID, inv.Period().Key(), inv.InvoiceNumber)
}

// Archive writes inv synchronously
func (a *Archiver) Archive(ctx context.Context, inv *Invoice) error {
	content, err := json.MarshalIndent(inv, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal invoice: %w", err)
	}
	if err := a.objects.PutObject(ctx, ArchiveKey(inv), content, "application/json"); err != nil {
		return fmt.Errorf("failed to archive invoice %d: %w", inv.ID, err)
	}
	return nil
}

// ArchiveAsync reloads invoice id and archives it in the background.
// Failures are logged and never reach the caller.
func (a *Archiver) ArchiveAsync(ctx context.Context, invoices invoiceGetter, id int64) {
	a.tasks.Go(ctx, a.timeout, "invoice archive", func(ctx context.Context) error {
		inv, err := invoices.Get(ctx, id)
		if err != nil {
			return err
		}
		return a.Archive(ctx, inv)
	})
}

// Wait blocks until in-flight archive tasks finish or ctx is done
func (a *Archiver) Wait(ctx context.Context) error {
	return a.tasks.Wait(ctx)
}
