package models

import (
	"time"

	"github.com/adamwilson22/Velaa-Backend/internal/utils"
)

// IBase is implemented by every document keyed by a SixID.
type IBase interface {
	GenIDIfEmpty()
	GenID()
	SetID(id utils.SixID)
}

type Base struct {
	ID utils.SixID `bson:"_id,omitempty" json:"id,omitempty"`
}

func (m *Base) GenIDIfEmpty() {
	if m.ID.IsZero() {
		m.GenID()
	}
}

func (m *Base) GenID() {
	m.ID = utils.NewSixID()
}

func (m *Base) SetID(id utils.SixID) {
	m.ID = id
}

// Timestamps are maintained by the stores, never by callers.
type Timestamps struct {
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// Touch sets UpdatedAt, and CreatedAt when it is still zero.
func (t *Timestamps) Touch(now time.Time) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
}
