package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/autopecas/sigesync/internal/domain"
	"github.com/autopecas/sigesync/internal/infrastructure/report"
	"github.com/autopecas/sigesync/internal/logging"
	"github.com/autopecas/sigesync/internal/usecase"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReconciliationService is what the handlers need from the usecase layer
type ReconciliationService interface {
	RunSync(ctx context.Context, req domain.SyncRequest, opts usecase.BatchOptions) (*domain.SyncResult, error)
	SetManualMapping(ctx context.Context, req usecase.ManualMappingRequest) (*domain.Mapping, error)
	RemoveMapping(ctx context.Context, sku string) error
	ListMappings(ctx context.Context) ([]domain.Mapping, error)
	LookupBalance(ctx context.Context, key string, opts domain.LookupOptions) (*domain.LookupResult, error)
}

// Handler holds dependencies for HTTP handlers
type Handler struct {
	service ReconciliationService
	logger  logrus.FieldLogger
	version string
}

// NewHandler creates a new HTTP handler
func NewHandler(service ReconciliationService, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{service: service, logger: logger, version: "1.0.0"}
}

// HealthCheck returns the health status of the API
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "sigesync",
		"version": h.version,
	})
}

// errorStatus maps domain errors to HTTP status codes
func errorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrAuthentication):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrMappingNotFound), errors.Is(err, domain.ErrRemoteNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, domain.ErrCatalogParse), errors.Is(err, domain.ErrRemoteAPIFailure):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

func (h *Handler) fail(c *gin.Context, err error) {
	status := errorStatus(err)
	entry := logging.FromContext(c.Request.Context(), h.logger).WithError(err).WithField("status", status)
	if status >= http.StatusInternalServerError {
		entry.Error("[HTTP] request failed")
	} else {
		entry.Warn("[HTTP] request rejected")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func (h *Handler) unavailable(c *gin.Context) bool {
	if h.service == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reconciliation service not configured"})
		return true
	}
	return false
}

// RunSync runs a sync pass. ?format=xlsx returns the review workbook instead of JSON.
func (h *Handler) RunSync(c *gin.Context) {
	if h.unavailable(c) {
		return
	}

	var req domain.SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}
	if req.BatchSize < 0 {
		h.fail(c, fmt.Errorf("%w: batchSize must not be negative", domain.ErrInvalidRequest))
		return
	}

	result, err := h.service.RunSync(c.Request.Context(), req, usecase.BatchOptions{})
	if err != nil && result == nil {
		h.fail(c, err)
		return
	}
	if err != nil {
		// mappings were written; the balance phase stopped early
		logging.FromContext(c.Request.Context(), h.logger).WithError(err).Warn("[HTTP] sync finished with balance errors")
		c.Header("X-Sync-Warning", err.Error())
	}

	if c.Query("format") == "xlsx" {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sigesync-%s.xlsx"`, result.RunID))
		c.Header("Content-Type", xlsxContentType)
		c.Status(http.StatusOK)
		if err := report.WriteMatchReport(c.Writer, result); err != nil {
			h.logger.WithError(err).Error("[HTTP] failed to write xlsx report")
		}
		return
	}
	c.JSON(http.StatusOK, result)
}

// ListMappings returns every stored mapping
func (h *Handler) ListMappings(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	mappings, err := h.service.ListMappings(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, mappings)
}

type manualMappingBody struct {
	RemoteID    string `json:"remoteId"`
	Description string `json:"description"`
}

// SetMapping stores a manual mapping for the SKU in the path
func (h *Handler) SetMapping(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	var body manualMappingBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.fail(c, fmt.Errorf("%w: %v", domain.ErrInvalidRequest, err))
		return
	}

	m, err := h.service.SetManualMapping(c.Request.Context(), usecase.ManualMappingRequest{
		SKU:         c.Param("sku"),
		RemoteID:    body.RemoteID,
		Description: body.Description,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, m)
}

// DeleteMapping removes the mapping of the SKU in the path
func (h *Handler) DeleteMapping(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	if err := h.service.RemoveMapping(c.Request.Context(), c.Param("sku")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetBalance looks up the live balance of a SKU or SIGE id
func (h *Handler) GetBalance(c *gin.Context) {
	if h.unavailable(c) {
		return
	}
	force, err := optionalBool(c, "force")
	if err != nil {
		h.fail(c, err)
		return
	}
	debug, err := optionalBool(c, "debug")
	if err != nil {
		h.fail(c, err)
		return
	}

	result, err := h.service.LookupBalance(c.Request.Context(), c.Param("key"), domain.LookupOptions{Force: force, Debug: debug})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func optionalBool(c *gin.Context, name string) (bool, error) {
	raw, ok := c.GetQuery(name)
	if !ok || raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", domain.ErrInvalidRequest, name)
	}
	return v, nil
}
