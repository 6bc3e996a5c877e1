package http

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"classgate/internal/codes"
	"classgate/internal/domain"
)

type Handlers struct {
	Registry *codes.Registry
	AdminKey string
}

// Validate is the join-flow boundary. It distinguishes "code does not
// exist" from "code exists but is revoked" so the page can say which.
func (h *Handlers) Validate(c *gin.Context) {
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "access code is required"})
		return
	}

	record, err := h.Registry.Validate(req.Code)
	switch {
	case errors.Is(err, codes.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "reason": "not_found"})
	case errors.Is(err, codes.ErrRevoked):
		c.JSON(http.StatusNotFound, gin.H{"valid": false, "reason": "revoked"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validation failed"})
	default:
		c.JSON(http.StatusOK, gin.H{
			"valid":  true,
			"record": gin.H{"code": record.Code, "name": record.Name},
		})
	}
}

func (h *Handlers) Login(c *gin.Context) {
	var req struct {
		Key string `json:"key" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing key"})
		return
	}
	if h.AdminKey == "" || subtle.ConstantTimeCompare([]byte(req.Key), []byte(h.AdminKey)) != 1 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid key"})
		return
	}
	s := sessions.Default(c)
	s.Set(sessionAdminKey, true)
	if err := s.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "session save failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) ListCodes(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"codes": h.Registry.List()})
}

func (h *Handlers) GenerateOne(c *gin.Context) {
	var req struct {
		Name string `json:"name"`
	}
	_ = c.ShouldBindJSON(&req)

	item, err := h.Registry.GenerateOne(c.Request.Context(), req.Name)
	if err != nil {
		c.JSON(generateStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, item)
}

// generateStatus maps generation failures: a store outage is a gateway
// problem, collision exhaustion is ours, anything else is bad input
// (for example a name over the length limit).
func generateStatus(err error) int {
	switch {
	case errors.Is(err, codes.ErrRemoteUnavailable):
		return http.StatusBadGateway
	case errors.Is(err, codes.ErrCollisionExhausted):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (h *Handlers) GenerateBulk(c *gin.Context) {
	var req struct {
		Count int      `json:"count" binding:"required"`
		Names []string `json:"names"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing count"})
		return
	}

	items, err := h.Registry.GenerateBulk(c.Request.Context(), req.Count, req.Names)
	if err != nil {
		c.JSON(generateStatus(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"codes": items})
}

// Import consumes the uploaded file body as CSV; rows with unusable
// shapes are skipped, never fatal to the batch.
func (h *Handlers) Import(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}
	items := codes.ParseCSV(string(body))
	if len(items) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no usable rows"})
		return
	}
	if err := h.Registry.ImportMany(c.Request.Context(), items); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"imported": len(items)})
}

func (h *Handlers) Export(c *gin.Context) {
	csv := codes.ExportCSV(h.Registry.List())
	c.Header("Content-Disposition", `attachment; filename="access-codes.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}

// SetName: a missing name field leaves the label unchanged, an empty
// string clears it.
func (h *Handlers) SetName(c *gin.Context) {
	var req struct {
		Code string  `json:"code" binding:"required"`
		Name *string `json:"name"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code"})
		return
	}
	if err := h.Registry.SetName(c.Request.Context(), req.Code, req.Name); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) SetNamesBulk(c *gin.Context) {
	var req struct {
		Codes     []string `json:"codes" binding:"required"`
		Names     []string `json:"names" binding:"required"`
		Overwrite bool     `json:"overwrite"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing codes or names"})
		return
	}
	if err := h.Registry.SetNamesBulk(c.Request.Context(), req.Codes, req.Names, req.Overwrite); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) SetStatus(c *gin.Context) {
	var req struct {
		Code   string `json:"code" binding:"required"`
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing code or status"})
		return
	}
	status := domain.CodeStatus(req.Status)
	if status != domain.CodeActive && status != domain.CodeRevoked {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status must be active or revoked"})
		return
	}
	if err := h.Registry.SetStatus(c.Request.Context(), req.Code, status); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *Handlers) RemoveMany(c *gin.Context) {
	var req struct {
		Codes []string `json:"codes" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing codes"})
		return
	}
	if err := h.Registry.RemoveMany(c.Request.Context(), req.Codes); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("module", "adapters.http").Int("count", len(req.Codes)).Msg("codes removed")
	c.JSON(http.StatusOK, gin.H{"ok": true})
}
