package requestlog

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// RequestLog records one gateway call for later inspection. Query text is
// truncated before it reaches the writer so oversized payloads never land
// in the table.
type RequestLog struct {
	ID           snowflake.ID `gorm:"primaryKey;autoIncrement:false" json:"id"`
	RepositoryID snowflake.ID `gorm:"index;autoIncrement:false" json:"repository_id"`
	ClientID     string       `gorm:"size:64;index" json:"client_id"`
	UserID       string       `gorm:"size:64" json:"user_id"`
	Method       string       `gorm:"size:64" json:"method"`
	Query        string       `gorm:"size:512" json:"query"`
	StatusCode   int          `json:"status_code"`
	DurationMs   int64        `json:"duration_ms"`
	RequestID    string       `gorm:"size:64" json:"request_id"`
	RemoteIP     string       `gorm:"size:64" json:"remote_ip"`
	CreatedAt    time.Time    `json:"created_at"`
}

func (RequestLog) TableName() string {
	return "request_logs"
}
