package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/drewmudry/cadence-api/internal/tokencrypt"
	"github.com/drewmudry/cadence-api/models"
)

// Handler runs the provider connect flow that creates SocialAccounts.
type Handler struct {
	DB     *gorm.DB
	State  *StateSigner
	Cipher *tokencrypt.Cipher
	Config ConnectConfig
}

func NewHandler(db *gorm.DB, state *StateSigner, cipher *tokencrypt.Cipher, cfg ConnectConfig) *Handler {
	return &Handler{
		DB:     db,
		State:  state,
		Cipher: cipher,
		Config: cfg.withDefaults(),
	}
}

func providerParam(c *gin.Context) (models.Provider, bool) {
	p := models.Provider(c.Param("provider"))
	if !p.Valid() {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown provider"})
		return "", false
	}
	return p, true
}

// Start handles GET /oauth/:provider/start and redirects to the provider
// consent screen.
func (h *Handler) Start(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}

	brandID, err := strconv.ParseUint(c.Query("brandId"), 10, 64)
	if err != nil || brandID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "brandId is required"})
		return
	}

	var brand models.Brand
	if err := h.DB.First(&brand, brandID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Brand not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	cfg, ok := h.Config.oauthConfig(p)
	if !ok {
		logrus.WithField("provider", p).Error("[AUTH] provider credentials not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Provider not configured"})
		return
	}

	state, err := h.State.Sign(StatePayload{
		BrandID:  uint(brandID),
		UserID:   c.Query("userId"),
		Provider: string(p),
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create state"})
		return
	}

	var opts []oauth2.AuthCodeOption
	if p == models.ProviderX {
		opts = append(opts, oauth2.S256ChallengeOption(h.State.Verifier(state)))
	}
	c.Redirect(http.StatusTemporaryRedirect, cfg.AuthCodeURL(state, opts...))
}

// Callback handles GET /oauth/:provider/callback. On success the account is
// stored as connected and the user is sent back to the frontend.
func (h *Handler) Callback(c *gin.Context) {
	p, ok := providerParam(c)
	if !ok {
		return
	}

	if reason := c.Query("error"); reason != "" {
		logrus.WithFields(logrus.Fields{"provider": p, "reason": reason}).Warn("[AUTH] provider denied authorization")
		c.Redirect(http.StatusTemporaryRedirect, h.frontendURL("", p, "error", reason))
		return
	}

	stateToken := c.Query("state")
	state, err := h.State.Verify(stateToken)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state token"})
		return
	}
	if state.Provider != string(p) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid state token"})
		return
	}

	code := c.Query("code")
	if code == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "No authorization code"})
		return
	}

	cfg, ok := h.Config.oauthConfig(p)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Provider not configured"})
		return
	}

	entry := logrus.WithFields(logrus.Fields{"provider": p, "brand_id": state.BrandID})
	ctx := context.WithValue(c.Request.Context(), oauth2.HTTPClient, h.Config.HTTPClient)

	var opts []oauth2.AuthCodeOption
	if p == models.ProviderX {
		opts = append(opts, oauth2.VerifierOption(h.State.Verifier(stateToken)))
	}
	tok, err := cfg.Exchange(ctx, code, opts...)
	if err != nil {
		entry.WithError(err).Error("[AUTH] code exchange failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to exchange authorization code"})
		return
	}

	id, err := h.Config.resolveIdentity(ctx, p, cfg.Client(ctx, tok), tok)
	if err != nil {
		entry.WithError(err).Error("[AUTH] identity lookup failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to look up account"})
		return
	}

	if err := h.saveAccount(state, p, id); err != nil {
		entry.WithError(err).Error("[AUTH] failed to store account")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to store account"})
		return
	}

	entry.Info("[AUTH] account connected")
	c.Redirect(http.StatusTemporaryRedirect, h.frontendURL(strconv.FormatUint(uint64(state.BrandID), 10), p, "connected", ""))
}

// saveAccount upserts on (brand_id, provider) so reconnecting replaces the
// token of an expired or revoked account.
func (h *Handler) saveAccount(state StatePayload, p models.Provider, id identity) error {
	if h.Cipher == nil {
		return errors.New("TOKEN_ENCRYPTION_KEY not configured")
	}
	envelope, err := h.Cipher.Encrypt(id.Token)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	meta, err := models.EncodeMetadata(id.Metadata)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}

	account := models.SocialAccount{
		BrandID:        state.BrandID,
		Provider:       p,
		Status:         models.AccountStatusConnected,
		EncryptedToken: envelope,
		TokenExpiresAt: id.Expiry,
		Metadata:       meta,
		ConnectedBy:    state.UserID,
	}
	return h.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "brand_id"}, {Name: "provider"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"status", "status_reason", "encrypted_token", "token_expires_at",
			"metadata", "connected_by", "updated_at",
		}),
	}).Create(&account).Error
}

func (h *Handler) frontendURL(brandID string, p models.Provider, status, reason string) string {
	q := url.Values{}
	q.Set("provider", string(p))
	q.Set("status", status)
	if brandID != "" {
		q.Set("brandId", brandID)
	}
	if reason != "" {
		q.Set("reason", reason)
	}
	return h.Config.FrontendURL + "/channels/callback?" + q.Encode()
}
