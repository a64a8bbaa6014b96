package models

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// AccountStatus is the connection state of a SocialAccount.
type AccountStatus string

const (
	AccountStatusConnected AccountStatus = "connected"
	AccountStatusExpired   AccountStatus = "expired"
	AccountStatusRevoked   AccountStatus = "revoked"
	AccountStatusError     AccountStatus = "error"
)

// SocialAccount is a brand's connection to one provider. The connect flow
// writes it; the publish pipeline only flips status to expired after an auth
// failure.
type SocialAccount struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	BrandID        uint           `gorm:"not null;uniqueIndex:ux_social_accounts_brand_provider,priority:1" json:"brand_id"`
	Provider       Provider       `gorm:"not null;uniqueIndex:ux_social_accounts_brand_provider,priority:2" json:"provider"`
	Status         AccountStatus  `gorm:"not null;default:'connected'" json:"status"`
	StatusReason   *string        `gorm:"type:text" json:"status_reason,omitempty"`
	EncryptedToken string         `gorm:"type:text;not null" json:"-"`
	TokenExpiresAt *time.Time     `json:"token_expires_at,omitempty"`
	Metadata       datatypes.JSON `json:"metadata"`
	ConnectedBy    string         `json:"connected_by"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

func (SocialAccount) TableName() string {
	return "social_accounts"
}

// Connected reports whether the account can be used for publishing.
func (a SocialAccount) Connected() bool {
	return a.Status == AccountStatusConnected
}

type FacebookMetadata struct {
	PageID   string `json:"page_id"`
	PageName string `json:"page_name,omitempty"`
}

type InstagramMetadata struct {
	IGUserID string `json:"ig_user_id"`
	Username string `json:"username,omitempty"`
}

type LinkedInMetadata struct {
	AuthorURN string `json:"author_urn"`
	Name      string `json:"name,omitempty"`
}

type XMetadata struct {
	UserID   string `json:"user_id"`
	Username string `json:"username,omitempty"`
}

func (a SocialAccount) decodeMetadata(want Provider, out any) error {
	if a.Provider != want {
		return fmt.Errorf("account %d is %s, not %s", a.ID, a.Provider, want)
	}
	if len(a.Metadata) == 0 {
		return fmt.Errorf("account %d has no metadata", a.ID)
	}
	if err := json.Unmarshal(a.Metadata, out); err != nil {
		return fmt.Errorf("decode %s metadata: %w", want, err)
	}
	return nil
}

func (a SocialAccount) FacebookMetadata() (FacebookMetadata, error) {
	var m FacebookMetadata
	if err := a.decodeMetadata(ProviderFacebook, &m); err != nil {
		return m, err
	}
	if m.PageID == "" {
		return m, fmt.Errorf("facebook metadata missing page_id")
	}
	return m, nil
}

func (a SocialAccount) InstagramMetadata() (InstagramMetadata, error) {
	var m InstagramMetadata
	if err := a.decodeMetadata(ProviderInstagram, &m); err != nil {
		return m, err
	}
	if m.IGUserID == "" {
		return m, fmt.Errorf("instagram metadata missing ig_user_id")
	}
	return m, nil
}

func (a SocialAccount) LinkedInMetadata() (LinkedInMetadata, error) {
	var m LinkedInMetadata
	if err := a.decodeMetadata(ProviderLinkedIn, &m); err != nil {
		return m, err
	}
	if m.AuthorURN == "" {
		return m, fmt.Errorf("linkedin metadata missing author_urn")
	}
	return m, nil
}

func (a SocialAccount) XMetadata() (XMetadata, error) {
	var m XMetadata
	if err := a.decodeMetadata(ProviderX, &m); err != nil {
		return m, err
	}
	if m.UserID == "" {
		return m, fmt.Errorf("x metadata missing user_id")
	}
	return m, nil
}

// EncodeMetadata marshals a provider metadata variant for storage.
func EncodeMetadata(v any) (datatypes.JSON, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
