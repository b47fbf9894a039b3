package domain

import "time"

// HourlyAggregate is the per-app rollup of one hour of raw samples; the
// in-progress hour is rolled up too. Rollups replace fields on conflict, so re-aggregating a
// bucket is idempotent.
type HourlyAggregate struct {
	ID                   int64     `json:"aggregate_id,string" gorm:"primaryKey;autoIncrement"`
	HourStart            time.Time `json:"hour_start" gorm:"uniqueIndex:uk_hourly_bucket;index;not null"`
	AppID                int64     `json:"app_id,string" gorm:"uniqueIndex:uk_hourly_bucket;index;not null"`
	BytesSent            int64     `json:"bytes_sent"`
	BytesReceived        int64     `json:"bytes_received"`
	PacketsSent          int64     `json:"packets_sent"`
	PacketsReceived      int64     `json:"packets_received"`
	MaxActiveConnections int       `json:"max_active_connections"`
	SampleCount          int64     `json:"sample_count"`
}

// TableName Specify table name
func (HourlyAggregate) TableName() string {
	return "hourly_aggregates"
}

// DailyAggregate is the per-app rollup of one UTC day of hourly
// aggregates; the in-progress day is rolled up too. Daily rows are retained indefinitely.
type DailyAggregate struct {
	ID                   int64     `json:"aggregate_id,string" gorm:"primaryKey;autoIncrement"`
	DayStart             time.Time `json:"day_start" gorm:"uniqueIndex:uk_daily_bucket;index;not null"`
	AppID                int64     `json:"app_id,string" gorm:"uniqueIndex:uk_daily_bucket;index;not null"`
	BytesSent            int64     `json:"bytes_sent"`
	BytesReceived        int64     `json:"bytes_received"`
	PacketsSent          int64     `json:"packets_sent"`
	PacketsReceived      int64     `json:"packets_received"`
	MaxActiveConnections int       `json:"max_active_connections"`
	SampleCount          int64     `json:"sample_count"`
}

// TableName Specify table name
func (DailyAggregate) TableName() string {
	return "daily_aggregates"
}

// BrowserDomainHourly rolls up browser domain samples per hour.
type BrowserDomainHourly struct {
	ID            int64     `json:"aggregate_id,string" gorm:"primaryKey;autoIncrement"`
	HourStart     time.Time `json:"hour_start" gorm:"uniqueIndex:uk_browser_hourly;index;not null"`
	DomainID      int64     `json:"domain_id,string" gorm:"uniqueIndex:uk_browser_hourly;index;not null"`
	AppID         int64     `json:"app_id,string" gorm:"uniqueIndex:uk_browser_hourly;not null"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
	SampleCount   int64     `json:"sample_count"`
}

// TableName Specify table name
func (BrowserDomainHourly) TableName() string {
	return "browser_domain_hourly"
}

// BrowserDomainDaily rolls up browser domain hours per UTC day.
type BrowserDomainDaily struct {
	ID            int64     `json:"aggregate_id,string" gorm:"primaryKey;autoIncrement"`
	DayStart      time.Time `json:"day_start" gorm:"uniqueIndex:uk_browser_daily;index;not null"`
	DomainID      int64     `json:"domain_id,string" gorm:"uniqueIndex:uk_browser_daily;index;not null"`
	AppID         int64     `json:"app_id,string" gorm:"uniqueIndex:uk_browser_daily;not null"`
	BytesSent     int64     `json:"bytes_sent"`
	BytesReceived int64     `json:"bytes_received"`
	SampleCount   int64     `json:"sample_count"`
}

// TableName Specify table name
func (BrowserDomainDaily) TableName() string {
	return "browser_domain_daily"
}
