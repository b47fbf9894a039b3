package domain

import "time"

// WebDomain is an interned fully-qualified domain name with its derived
// parent. A domain whose parent equals its fqdn is a registrable
// (parent) domain.
type WebDomain struct {
	ID           int64     `json:"domain_id,string" gorm:"primaryKey;autoIncrement"`
	Fqdn         string    `json:"domain" gorm:"uniqueIndex;size:255;not null"`
	ParentDomain string    `json:"parent_domain" gorm:"index;size:255"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen" gorm:"index"`
}

// TableName Specify table name
func (WebDomain) TableName() string {
	return "domains"
}
