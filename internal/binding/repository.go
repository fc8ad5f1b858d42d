package binding

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/leosozza/evowhats/internal/domain"
	"github.com/pkg/errors"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository persists open line bindings. Rows are never deleted.
type Repository interface {
	// Get returns the binding for tenant+line, active or not, or nil.
	Get(ctx context.Context, tenantID, lineID string) (*domain.OpenLineBinding, error)

	// GetByInstance returns the active binding served by instanceID, or nil.
	GetByInstance(ctx context.Context, instanceID string) (*domain.OpenLineBinding, error)

	// Create inserts a new binding.
	Create(ctx context.Context, b *domain.OpenLineBinding) error

	// Upsert points tenant+line at instanceID, creating the row if needed.
	Upsert(ctx context.Context, tenantID, lineID, instanceID string) (*domain.OpenLineBinding, error)

	// Reactivate marks an inactive row active again under a new instance.
	Reactivate(ctx context.Context, id int64, instanceID string, status domain.BindingStatus) error

	// UpdateStatus sets status and last_sync_at.
	UpdateStatus(ctx context.Context, id int64, status domain.BindingStatus, at time.Time) error

	// SetPairingCode stores the latest pairing code image.
	SetPairingCode(ctx context.Context, id int64, code string) error

	// Touch refreshes last_sync_at only.
	Touch(ctx context.Context, id int64, at time.Time) error

	// Deactivate clears is_active.
	Deactivate(ctx context.Context, id int64) error

	// ListLive returns active bindings in connecting or open state.
	ListLive(ctx context.Context) ([]*domain.OpenLineBinding, error)

	// List returns a tenant's bindings, newest first.
	List(ctx context.Context, tenantID string) ([]*domain.OpenLineBinding, error)
}

// GormRepository is the GORM implementation of Repository
type GormRepository struct {
	db   *gorm.DB
	node *snowflake.Node
}

func NewGormRepository(db *gorm.DB, node *snowflake.Node) *GormRepository {
	return &GormRepository{db: db, node: node}
}

func persistence(op string, err error) error {
	return domain.WrapError(domain.KindPersistenceFailure, "binding."+op, err)
}

func (r *GormRepository) first(q *gorm.DB, op string) (*domain.OpenLineBinding, error) {
	var b domain.OpenLineBinding
	err := q.First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, persistence(op, err)
	}
	return &b, nil
}

func (r *GormRepository) Get(ctx context.Context, tenantID, lineID string) (*domain.OpenLineBinding, error) {
	return r.first(r.db.WithContext(ctx).Where("tenant_id = ? AND line_id = ?", tenantID, lineID), "Get")
}

func (r *GormRepository) GetByInstance(ctx context.Context, instanceID string) (*domain.OpenLineBinding, error) {
	return r.first(r.db.WithContext(ctx).
		Where("instance_id = ? AND is_active = ?", instanceID, true).
		Order("updated_at DESC"), "GetByInstance")
}

func (r *GormRepository) Create(ctx context.Context, b *domain.OpenLineBinding) error {
	if b.ID == 0 {
		b.ID = r.node.Generate().Int64()
	}
	return persistence("Create", r.db.WithContext(ctx).Create(b).Error)
}

func (r *GormRepository) Upsert(ctx context.Context, tenantID, lineID, instanceID string) (*domain.OpenLineBinding, error) {
	var out domain.OpenLineBinding
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tenant_id = ? AND line_id = ?", tenantID, lineID).
			First(&out).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			out = domain.OpenLineBinding{
				ID:         r.node.Generate().Int64(),
				TenantID:   tenantID,
				LineID:     lineID,
				InstanceID: instanceID,
				Status:     domain.StatusUnknown,
				IsActive:   true,
			}
			return tx.Create(&out).Error
		case err != nil:
			return err
		}
		out.InstanceID = instanceID
		out.IsActive = true
		return tx.Model(&domain.OpenLineBinding{}).Where("id = ?", out.ID).Updates(map[string]interface{}{
			"instance_id": instanceID,
			"is_active":   true,
			"updated_at":  time.Now(),
		}).Error
	})
	if err != nil {
		return nil, persistence("Upsert", err)
	}
	return &out, nil
}

func (r *GormRepository) Reactivate(ctx context.Context, id int64, instanceID string, status domain.BindingStatus) error {
	return persistence("Reactivate", r.db.WithContext(ctx).Model(&domain.OpenLineBinding{}).Where("id = ?", id).Updates(map[string]interface{}{
		"instance_id":  instanceID,
		"status":       status,
		"pairing_code": "",
		"is_active":    true,
		"updated_at":   time.Now(),
	}).Error)
}

func (r *GormRepository) UpdateStatus(ctx context.Context, id int64, status domain.BindingStatus, at time.Time) error {
	return persistence("UpdateStatus", r.db.WithContext(ctx).Model(&domain.OpenLineBinding{}).Where("id = ?", id).Updates(map[string]interface{}{
		"status":       status,
		"last_sync_at": at,
		"updated_at":   time.Now(),
	}).Error)
}

func (r *GormRepository) SetPairingCode(ctx context.Context, id int64, code string) error {
	return persistence("SetPairingCode", r.db.WithContext(ctx).Model(&domain.OpenLineBinding{}).Where("id = ?", id).Updates(map[string]interface{}{
		"pairing_code": code,
		"updated_at":   time.Now(),
	}).Error)
}

func (r *GormRepository) Touch(ctx context.Context, id int64, at time.Time) error {
	return persistence("Touch", r.db.WithContext(ctx).Model(&domain.OpenLineBinding{}).Where("id = ?", id).
		Update("last_sync_at", at).Error)
}

func (r *GormRepository) Deactivate(ctx context.Context, id int64) error {
	return persistence("Deactivate", r.db.WithContext(ctx).Model(&domain.OpenLineBinding{}).Where("id = ?", id).Updates(map[string]interface{}{
		"is_active":  false,
		"updated_at": time.Now(),
	}).Error)
}

func (r *GormRepository) ListLive(ctx context.Context) ([]*domain.OpenLineBinding, error) {
	var out []*domain.OpenLineBinding
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND status IN ?", true, []domain.BindingStatus{domain.StatusConnecting, domain.StatusOpen}).
		Order("updated_at ASC").
		Find(&out).Error
	if err != nil {
		return nil, persistence("ListLive", err)
	}
	return out, nil
}

func (r *GormRepository) List(ctx context.Context, tenantID string) ([]*domain.OpenLineBinding, error) {
	var out []*domain.OpenLineBinding
	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Find(&out).Error
	if err != nil {
		return nil, persistence("List", err)
	}
	return out, nil
}
