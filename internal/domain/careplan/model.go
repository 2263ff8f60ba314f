package careplan

import (
	"time"

	"github.com/google/uuid"
)

// CarePlan maps to the care_plan table. Plans are immutable once written.
type CarePlan struct {
	ID        uuid.UUID `db:"id" json:"id"`
	PatientID uuid.UUID `db:"patient_id" json:"patient_id"`
	OrderID   uuid.UUID `db:"order_id" json:"order_id"`
	Content   string    `db:"content" json:"content"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
