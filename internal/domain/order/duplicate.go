package order

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/careplan/intake/internal/platform/clock"
)

// DefaultDuplicateWindow is how far back an earlier order for the same
// patient and medication counts as a duplicate.
const DefaultDuplicateWindow = 24 * time.Hour

// DuplicateDetector finds recent orders for the same patient and medication.
// Its findings are advisory and never block an order.
type DuplicateDetector struct {
	orders Repository
	clock  clock.Clock
	window time.Duration
}

func NewDuplicateDetector(orders Repository, clk clock.Clock, window time.Duration) *DuplicateDetector {
	if window <= 0 {
		window = DefaultDuplicateWindow
	}
	return &DuplicateDetector{orders: orders, clock: clk, window: window}
}

// Window is the configured look-back period.
func (d *DuplicateDetector) Window() time.Duration {
	return d.window
}

// FindRecentOrder returns the newest order for patientID with a
// case-insensitively equal medication created within window of now, or nil.
func (d *DuplicateDetector) FindRecentOrder(ctx context.Context, patientID uuid.UUID, medication string, window time.Duration) (*Order, error) {
	since := d.clock.Now().Add(-window)
	o, err := d.orders.FindRecent(ctx, patientID, medication, since)
	if err != nil {
		return nil, fmt.Errorf("find recent order: %w", err)
	}
	return o, nil
}

// Check runs FindRecentOrder with the configured window and returns the
// warning to show, or "" when there is no duplicate.
func (d *DuplicateDetector) Check(ctx context.Context, patientID uuid.UUID, medication string) (string, error) {
	o, err := d.FindRecentOrder(ctx, patientID, medication, d.window)
	if err != nil || o == nil {
		return "", err
	}
	return DuplicateWarning(medication), nil
}

// DuplicateWarning is the advisory text for a duplicate of medication.
func DuplicateWarning(medication string) string {
	return fmt.Sprintf("Duplicate order detected: %s was ordered recently for this patient.", medication)
}
