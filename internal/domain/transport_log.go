package domain

import "time"

// TransportLog records one outbound attempt.
type TransportLog struct {
	ID         int64     `json:"id,string" gorm:"primaryKey"`
	Path       string    `json:"path" gorm:"size:255;index"`
	Method     string    `json:"method" gorm:"size:16"`
	Attempt    int       `json:"attempt"`
	StatusCode int       `json:"status_code"`
	Retriable  bool      `json:"retriable"`
	LatencyMs  int64     `json:"latency_ms"`
	Error      string    `json:"error" gorm:"type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"index"`
}

func (TransportLog) TableName() string {
	return "transport_log"
}
