package domain

import "time"

// App is an interned process identity. A row is never deleted while
// samples reference it; LastSeen only moves forward.
type App struct {
	ID          int64     `json:"app_id,string" gorm:"primaryKey;autoIncrement"`
	ProcessName string    `json:"process_name" gorm:"uniqueIndex:uk_app_identity;size:255;not null"`
	BundleID    string    `json:"bundle_id" gorm:"uniqueIndex:uk_app_identity;size:255"`
	FirstSeen   time.Time `json:"first_seen"`
	LastSeen    time.Time `json:"last_seen" gorm:"index"`
}

// TableName Specify table name
func (App) TableName() string {
	return "applications"
}
