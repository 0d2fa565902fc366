package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/ledger"
)

// LedgerHandler exposes ledger diagnostics and engine statistics.
type LedgerHandler struct {
	ledger        ledger.Ledger
	properties    domain.PropertyRepository
	verifications domain.VerificationRepository
	tampers       domain.TamperRepository
	logger        *slog.Logger
}

// NewLedgerHandler creates a ledger/statistics handler.
func NewLedgerHandler(
	ldg ledger.Ledger,
	properties domain.PropertyRepository,
	verifications domain.VerificationRepository,
	tampers domain.TamperRepository,
	logger *slog.Logger,
) *LedgerHandler {
	return &LedgerHandler{
		ledger:        ldg,
		properties:    properties,
		verifications: verifications,
		tampers:       tampers,
		logger:        logger,
	}
}

// Status handles GET /api/v1/ledger/status.
func (h *LedgerHandler) Status(c *gin.Context) {
	status, err := h.ledger.Status(c.Request.Context())
	if err != nil {
		h.logger.Error("ledger status failed", "error", err)
		writeError(c, http.StatusServiceUnavailable, "EXTERNAL_UNAVAILABLE", "ledger unreachable", "ledger")
		return
	}
	c.JSON(http.StatusOK, status)
}

// Statistics handles GET /api/v1/statistics.
func (h *LedgerHandler) Statistics(c *gin.Context) {
	ctx := c.Request.Context()

	propertyCount, err := h.properties.Count(ctx)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "statistics unavailable", "")
		return
	}
	verificationCount, err := h.verifications.Count(ctx)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "statistics unavailable", "")
		return
	}
	riskHistogram, err := h.verifications.CountByRiskLevel(ctx)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "statistics unavailable", "")
		return
	}
	tamperCount, err := h.tampers.Count(ctx)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "statistics unavailable", "")
		return
	}
	tamperHistogram, err := h.tampers.CountByStatus(ctx)
	if err != nil {
		h.logger.Error("statistics failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "statistics unavailable", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"properties":     propertyCount,
		"verifications":  verificationCount,
		"tamper_checks":  tamperCount,
		"risk_levels":    riskHistogram,
		"tamper_results": tamperHistogram,
	})
}
