package store

import (
	"context"
	"errors"
	"time"

	"github.com/netpulse/netpulse/internal/domain"
	"github.com/netpulse/netpulse/pkg/common"
	"gorm.io/gorm"
)

// DomainRepository persists interned domain names.
type DomainRepository struct {
	store *Store
}

func NewDomainRepository(s *Store) *DomainRepository {
	return &DomainRepository{store: s}
}

// Upsert interns a normalized fqdn with its derived parent, advancing
// last_seen on repeat sightings.
func (r *DomainRepository) Upsert(ctx context.Context, fqdn, parent string, now time.Time) (int64, error) {
	var id int64
	err := r.store.Write(ctx, func(tx *gorm.DB) error {
		var d domain.WebDomain
		err := tx.Where("fqdn = ?", fqdn).First(&d).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			d = domain.WebDomain{
				Fqdn:         fqdn,
				ParentDomain: parent,
				FirstSeen:    now,
				LastSeen:     now,
			}
			if err := tx.Create(&d).Error; err != nil {
				return err
			}
		case err != nil:
			return err
		default:
			if now.After(d.LastSeen) {
				if err := tx.Model(&domain.WebDomain{}).Where("id = ?", d.ID).
					Update("last_seen", now).Error; err != nil {
					return err
				}
			}
		}
		id = d.ID
		return nil
	})
	if err != nil {
		return 0, common.TransientError(err, "upsert domain")
	}
	return id, nil
}

// GetByID returns the domain or a NotFound error.
func (r *DomainRepository) GetByID(ctx context.Context, id int64) (*domain.WebDomain, error) {
	var d domain.WebDomain
	err := r.store.Read(ctx).First(&d, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, common.NotFoundError("domain %d not found", id)
	}
	if err != nil {
		return nil, common.TransientError(err, "query domain")
	}
	return &d, nil
}

// All returns every interned domain, optionally restricted to
// registrable (parent) domains.
func (r *DomainRepository) All(ctx context.Context, parentOnly bool) ([]domain.WebDomain, error) {
	q := r.store.Read(ctx).Order("last_seen DESC")
	if parentOnly {
		q = q.Where("fqdn = parent_domain")
	}
	var out []domain.WebDomain
	if err := q.Find(&out).Error; err != nil {
		return nil, common.TransientError(err, "list domains")
	}
	return out, nil
}
