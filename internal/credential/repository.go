package credential

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

// Repository persists CRM credentials.
type Repository interface {
	// GetActive returns the active credential for subject+portal, or nil when
	// none exists.
	GetActive(ctx context.Context, subject, portal string) (*domain.CrmCredential, error)

	// ListActive returns every active credential.
	ListActive(ctx context.Context) ([]*domain.CrmCredential, error)

	// Activate stores cred as the only active credential for its subject+portal.
	Activate(ctx context.Context, cred *domain.CrmCredential) error

	// UpdateTokens rewrites the token pair of an existing credential.
	UpdateTokens(ctx context.Context, id int64, access, refresh string, expiresAt *time.Time) error
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewGormRepository(db *gorm.DB, node *snowflake.Node) *GormRepository {
	return &GormRepository{db: db, node: node}
}

func (r *GormRepository) GetActive(ctx context.Context, subject, portal string) (*domain.CrmCredential, error) {
	var cred domain.CrmCredential
	err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND portal_url = ? AND is_active = ?", subject, portal, true).
		Order("updated_at DESC").
		First(&cred).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistenceFailure, "credential.GetActive", err)
	}
	return &cred, nil
}

func (r *GormRepository) ListActive(ctx context.Context) ([]*domain.CrmCredential, error) {
	var creds []*domain.CrmCredential
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("expires_at ASC").
		Find(&creds).Error
	if err != nil {
		return nil, domain.WrapError(domain.KindPersistenceFailure, "credential.ListActive", err)
	}
	return creds, nil
}

func (r *GormRepository) Activate(ctx context.Context, cred *domain.CrmCredential) error {
	if cred.ID == 0 {
		cred.ID = r.node.Generate().Int64()
	}
	cred.IsActive = true
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.CrmCredential{}).
			Where("tenant_id = ? AND portal_url = ? AND is_active = ?", cred.TenantID, cred.PortalURL, true).
			Update("is_active", false).Error; err != nil {
			return err
		}
		return tx.Create(cred).Error
	})
	return domain.WrapError(domain.KindPersistenceFailure, "credential.Activate", err)
}

func (r *GormRepository) UpdateTokens(ctx context.Context, id int64, access, refresh string, expiresAt *time.Time) error {
	err := r.db.WithContext(ctx).Model(&domain.CrmCredential{}).Where("id = ?", id).Updates(map[string]interface{}{
		"access_token":  access,
		"refresh_token": refresh,
		"expires_at":    expiresAt,
		"updated_at":    time.Now(),
	}).Error
	return domain.WrapError(domain.KindPersistenceFailure, "credential.UpdateTokens", err)
}
