package models

import (
	"time"

	"gorm.io/datatypes"
)

type DisputeStatus string

const (
	DisputeOpen     DisputeStatus = "open"
	DisputePending  DisputeStatus = "pending"
	DisputeResolved DisputeStatus = "resolved"
)

// Valid reports whether s is one of the known statuses.
func (s DisputeStatus) Valid() bool {
	switch s {
	case DisputeOpen, DisputePending, DisputeResolved:
		return true
	}
	return false
}

// Active disputes are every dispute not yet resolved.
func (s DisputeStatus) Active() bool {
	return s != DisputeResolved
}

type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type DisputeHistoryEntry struct {
	At     time.Time         `json:"at"`
	Action string            `json:"action"`
	By     string            `json:"by"`
	Data   map[string]string `json:"data,omitempty"`
}

type Dispute struct {
	ID              string                                   `gorm:"primaryKey;size:36" json:"id"`
	CreatedAt       time.Time                                `gorm:"autoCreateTime:false" json:"createdAt"`
	UpdatedAt       time.Time                                `gorm:"autoUpdateTime:false" json:"updatedAt"`
	PaymentInfoHash string                                   `gorm:"index;size:66;not null" json:"paymentInfoHash"`
	Reason          string                                   `gorm:"type:text;not null" json:"reason"`
	Notes           string                                   `gorm:"type:text" json:"notes"`
	Attachments     datatypes.JSONSlice[Attachment]          `json:"attachments"`
	Status          DisputeStatus                            `gorm:"size:20;default:'open'" json:"status"` // open, pending, resolved
	History         datatypes.JSONSlice[DisputeHistoryEntry] `json:"history"`
}

// TableName overrides the table name
func (Dispute) TableName() string {
	return "disputes"
}

// Clone returns a deep copy so callers cannot mutate a store's record.
func (d *Dispute) Clone() *Dispute {
	if d == nil {
		return nil
	}
	out := *d
	out.Attachments = append(datatypes.JSONSlice[Attachment]{}, d.Attachments...)
	out.History = make(datatypes.JSONSlice[DisputeHistoryEntry], len(d.History))
	for i, entry := range d.History {
		if entry.Data != nil {
			data := make(map[string]string, len(entry.Data))
			for k, v := range entry.Data {
				data[k] = v
			}
			entry.Data = data
		}
		out.History[i] = entry
	}
	return &out
}
