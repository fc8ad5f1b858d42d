package domain

import (
	"strings"
	"time"
)

// BindingStatus is the canonical connectivity status of a gateway instance.
type BindingStatus string

const (
	StatusUnknown      BindingStatus = "unknown"
	StatusPendingQR    BindingStatus = "pending_qr"
	StatusConnecting   BindingStatus = "connecting"
	StatusOpen         BindingStatus = "open"
	StatusClosed       BindingStatus = "closed"
	StatusDisconnected BindingStatus = "disconnected"
	StatusError        BindingStatus = "error"
)

var remoteStatusVocabulary = map[string]BindingStatus{
	"open":         StatusOpen,
	"connected":    StatusOpen,
	"ready":        StatusOpen,
	"online":       StatusOpen,
	"connecting":   StatusConnecting,
	"syncing":      StatusConnecting,
	"starting":     StatusConnecting,
	"pairing":      StatusConnecting,
	"qr":           StatusPendingQR,
	"qrcode":       StatusPendingQR,
	"pending_qr":   StatusPendingQR,
	"close":        StatusClosed,
	"closed":       StatusClosed,
	"disconnected": StatusDisconnected,
	"logout":       StatusDisconnected,
	"logged_out":   StatusDisconnected,
	"error":        StatusError,
	"failed":       StatusError,
}

// ParseBindingStatus maps a gateway or webhook state string to a canonical
// status. Unrecognized values map to StatusUnknown.
func ParseBindingStatus(remote string) BindingStatus {
	if s, ok := remoteStatusVocabulary[strings.ToLower(strings.TrimSpace(remote))]; ok {
		return s
	}
	return StatusUnknown
}

// Live reports whether the status is one a periodic sync should follow.
func (s BindingStatus) Live() bool {
	return s == StatusConnecting || s == StatusOpen
}

// OpenLineBinding maps one CRM open line to one gateway instance.
type OpenLineBinding struct {
	ID          int64         `json:"id,string" gorm:"primaryKey"`
	TenantID    string        `json:"tenant_id" gorm:"size:128;uniqueIndex:idx_binding_tenant_line"`
	LineID      string        `json:"line_id" gorm:"size:128;uniqueIndex:idx_binding_tenant_line"`
	InstanceID  string        `json:"instance_id" gorm:"size:255;index"`
	Status      BindingStatus `json:"status" gorm:"size:32"`
	PairingCode string        `json:"pairing_code,omitempty" gorm:"type:text"`
	IsActive    bool          `json:"is_active" gorm:"index"`
	LastSyncAt  *time.Time    `json:"last_sync_at"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

func (OpenLineBinding) TableName() string {
	return "openline_binding"
}
