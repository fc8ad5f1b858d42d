package domain

import "time"

// CrmCredential is an OAuth token pair for one CRM portal. At most one row per
// (tenant, portal) is active; older rows are kept for audit.
type CrmCredential struct {
	ID           int64      `json:"id,string" gorm:"primaryKey"`
	TenantID     string     `json:"tenant_id" gorm:"size:128;index:idx_credential_subject"`
	PortalURL    string     `json:"portal_url" gorm:"size:255;index:idx_credential_subject"`
	AccessToken  string     `json:"-" gorm:"type:text"`
	RefreshToken string     `json:"-" gorm:"type:text"`
	ExpiresAt    *time.Time `json:"expires_at"`
	IsActive     bool       `json:"is_active" gorm:"index"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (CrmCredential) TableName() string {
	return "crm_credential"
}

// ExpiresWithin reports whether the credential has no known expiry or expires
// before now+margin.
func (c *CrmCredential) ExpiresWithin(now time.Time, margin time.Duration) bool {
	if c.ExpiresAt == nil || c.ExpiresAt.IsZero() {
		return true
	}
	return !c.ExpiresAt.After(now.Add(margin))
}
