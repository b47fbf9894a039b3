package domain

import "time"

// SysConfig is a runtime key-value setting row. Keys are enumerated by
// the config manager; values are text and cast on read.
type SysConfig struct {
	ID        int64     `json:"id,string" form:"id"`
	Name      string    `gorm:"uniqueIndex;size:128" json:"name" form:"name"`
	Value     string    `json:"value" form:"value"`
	Remark    string    `json:"remark" form:"remark"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SysConfig) TableName() string {
	return "sys_config"
}

// RetentionLog is the audit trail written by the aggregation and
// retention tasks.
type RetentionLog struct {
	ID              int64     `json:"log_id,string"`
	Operation       string    `gorm:"index;size:64" json:"operation"`
	Timestamp       time.Time `gorm:"index" json:"timestamp"`
	RecordsAffected int64     `json:"records_affected"`
	Details         string    `json:"details"`
}

// TableName Specify table name
func (RetentionLog) TableName() string {
	return "retention_log"
}

// SchemaVersion gates ordered migrations on store open.
type SchemaVersion struct {
	ID        int64     `json:"id,string"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName Specify table name
func (SchemaVersion) TableName() string {
	return "schema_version"
}
