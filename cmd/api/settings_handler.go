package api

import (
	"net/http"

	authdelivery "github.com/landovsky/gmail-assistant-sub002/internal/auth/delivery"
	userdomain "github.com/landovsky/gmail-assistant-sub002/internal/user/domain"
	userrepo "github.com/landovsky/gmail-assistant-sub002/internal/user/repository"

	"github.com/gin-gonic/gin"
)

// UpdateSettingsRequest represents the request body for updating user settings.
// Omitted fields keep their stored value.
type UpdateSettingsRequest struct {
	Blacklist       *[]string          `json:"blacklist"`
	SenderStyles    *map[string]string `json:"sender_styles"`
	DomainStyles    *map[string]string `json:"domain_styles"`
	SenderLanguages *map[string]string `json:"sender_languages"`
	DomainLanguages *map[string]string `json:"domain_languages"`
	SignOffName     *string            `json:"sign_off_name"`
}

type SettingsHandler struct {
	settings userrepo.SettingsRepository
}

func NewSettingsHandler(settings userrepo.SettingsRepository) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

// GetSettings returns the classification and drafting preferences
// GET /api/settings
func (h *SettingsHandler) GetSettings(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	settings, err := h.settings.Get(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}

// UpdateSettings updates the preferences
// PUT /api/settings
func (h *SettingsHandler) UpdateSettings(c *gin.Context) {
	user := authdelivery.CurrentUser(c)

	var req UpdateSettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	settings, err := h.settings.Get(c.Request.Context(), user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if req.Blacklist != nil {
		settings.Blacklist = userdomain.StringList(*req.Blacklist)
	}
	if req.SenderStyles != nil {
		settings.SenderStyles = userdomain.StringMap(*req.SenderStyles)
	}
	if req.DomainStyles != nil {
		settings.DomainStyles = userdomain.StringMap(*req.DomainStyles)
	}
	if req.SenderLanguages != nil {
		settings.SenderLanguages = userdomain.StringMap(*req.SenderLanguages)
	}
	if req.DomainLanguages != nil {
		settings.DomainLanguages = userdomain.StringMap(*req.DomainLanguages)
	}
	if req.SignOffName != nil {
		settings.SignOffName = *req.SignOffName
	}

	if err := h.settings.Save(c.Request.Context(), settings); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, settings)
}
