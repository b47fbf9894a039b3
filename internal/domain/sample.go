package domain

import "time"

// NetworkSample is one per-app measurement interval. Byte and packet
// counts are the delta during the interval ending at Timestamp, never
// cumulative counter values. At most one row exists per (ts, app).
type NetworkSample struct {
	ID                int64     `json:"sample_id,string" gorm:"primaryKey;autoIncrement"`
	Timestamp         time.Time `json:"timestamp" gorm:"uniqueIndex:uk_sample_tick;index;not null"`
	AppID             int64     `json:"app_id,string" gorm:"uniqueIndex:uk_sample_tick;index;not null"`
	BytesSent         int64     `json:"bytes_sent"`
	BytesReceived     int64     `json:"bytes_received"`
	PacketsSent       int64     `json:"packets_sent"`
	PacketsReceived   int64     `json:"packets_received"`
	ActiveConnections int       `json:"active_connections"`
}

// TableName Specify table name
func (NetworkSample) TableName() string {
	return "network_samples"
}

// BrowserDomainSample records that a browser app had a domain as its
// active tab at Timestamp. Byte fields exist for schema symmetry with
// NetworkSample and are always zero; no component attributes bytes to
// domains.
type BrowserDomainSample struct {
	ID            int64     `json:"sample_id,string" gorm:"primaryKey;autoIncrement"`
	Timestamp     time.Time `json:"timestamp" gorm:"uniqueIndex:uk_browser_tick;index;not null"`
	DomainID      int64     `json:"domain_id,string" gorm:"uniqueIndex:uk_browser_tick;index;not null"`
	AppID         int64     `json:"app_id,string" gorm:"uniqueIndex:uk_browser_tick;index;not null"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
}

// TableName Specify table name
func (BrowserDomainSample) TableName() string {
	return "browser_domain_samples"
}
