// Package handlers implements the HTTP API handlers.
package handlers

import (
	"encoding/hex"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/proptrust/backend/internal/domain"
	"github.com/proptrust/backend/internal/engine"
	"github.com/proptrust/backend/internal/extraction"
	"github.com/proptrust/backend/internal/verification"
)

// maxUploadBytes caps document uploads at 25 MiB.
const maxUploadBytes = 25 << 20

// VerificationHandler handles verify, tamper-check and lookup requests.
type VerificationHandler struct {
	orchestrator  *verification.Orchestrator
	tamper        *verification.TamperChecker
	properties    domain.PropertyRepository
	verifications domain.VerificationRepository
	logger        *slog.Logger
}

// NewVerificationHandler creates a verification handler.
func NewVerificationHandler(
	orchestrator *verification.Orchestrator,
	tamper *verification.TamperChecker,
	properties domain.PropertyRepository,
	verifications domain.VerificationRepository,
	logger *slog.Logger,
) *VerificationHandler {
	return &VerificationHandler{
		orchestrator:  orchestrator,
		tamper:        tamper,
		properties:    properties,
		verifications: verifications,
		logger:        logger,
	}
}

// ledgerInfo is the anchoring section of a verify response.
type ledgerInfo struct {
	Stored         bool   `json:"stored"`
	FingerprintHex string `json:"fingerprint_hex"`
	Reference      string `json:"reference,omitempty"`
	BlockHeight    int64  `json:"block_height,omitempty"`
}

// VerifyUpload handles POST /api/v1/verify/upload.
func (h *VerificationHandler) VerifyUpload(c *gin.Context) {
	document, format, ok := h.readUpload(c)
	if !ok {
		return
	}

	anchor := false
	if v := c.PostForm("store_on_ledger"); v != "" {
		anchor, _ = strconv.ParseBool(v)
	}

	result, err := h.orchestrator.Verify(c.Request.Context(), verification.VerifyRequest{
		Document:     document,
		Format:       format,
		DeclaredType: domain.ParseDocumentType(c.PostForm("document_type")),
		PropertyID:   c.PostForm("property_id"),
		Anchor:       anchor,
	})
	if err != nil {
		writeEngineError(c, err)
		return
	}

	info := ledgerInfo{
		Stored:         result.Receipt != nil,
		FingerprintHex: hex.EncodeToString(result.Record.Fingerprint),
	}
	if result.Receipt != nil {
		info.Reference = result.Receipt.Handle
		info.BlockHeight = result.Receipt.BlockHeight
	}

	c.JSON(http.StatusOK, gin.H{
		"property_id":     result.Record.PropertyID,
		"verification_id": result.Record.VerificationID,
		"risk_score":      result.Record.RiskScore,
		"risk_level":      result.Record.RiskLevel,
		"entities":        result.Detail.Entities,
		"classification": gin.H{
			"label":      result.Record.ClassificationLabel,
			"confidence": result.Record.ClassificationConfidence,
		},
		"factors":         result.Assessment.Factors,
		"recommendations": result.Assessment.Recommendations,
		"warnings":        result.Detail.Warnings,
		"ledger":          info,
	})
}

// CheckTamper handles POST /api/v1/tamper/check.
func (h *VerificationHandler) CheckTamper(c *gin.Context) {
	propertyID := c.Query("property_id")
	if propertyID == "" {
		writeError(c, http.StatusBadRequest, "BAD_INPUT", "property_id is required", "")
		return
	}

	document, format, ok := h.readUpload(c)
	if !ok {
		return
	}

	check, err := h.tamper.Check(c.Request.Context(), propertyID, document, format)
	if err != nil {
		writeEngineError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tamper_check_id":           check.TamperCheckID,
		"property_id":               check.PropertyID,
		"status":                    check.Status,
		"hash_matched":              check.HashMatched,
		"anchored_fingerprint_hex":  hex.EncodeToString(check.AnchoredFingerprint),
		"recomputed_fingerprint_hex": hex.EncodeToString(check.RecomputedFingerprint),
		"risk_score_delta":          check.RiskScoreDelta,
		"warnings":                  check.Warnings,
	})
}

// GetVerification handles GET /api/v1/verification/:property_id.
func (h *VerificationHandler) GetVerification(c *gin.Context) {
	propertyID := c.Param("property_id")

	record, detail, err := h.verifications.GetLatestByProperty(c.Request.Context(), propertyID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "no verification for property", "")
		return
	}
	if err != nil {
		h.logger.Error("get verification failed", "property_id", propertyID, "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "lookup failed", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record":          record,
		"detail":          detail,
		"fingerprint_hex": hex.EncodeToString(record.Fingerprint),
	})
}

// GetHistory handles GET /api/v1/verification/:property_id/history.
func (h *VerificationHandler) GetHistory(c *gin.Context) {
	propertyID := c.Param("property_id")

	records, err := h.verifications.ListByProperty(c.Request.Context(), propertyID)
	if err != nil {
		h.logger.Error("list verifications failed", "property_id", propertyID, "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "lookup failed", "")
		return
	}
	if len(records) == 0 {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "no verification for property", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"property_id": propertyID, "records": records})
}

// DeleteVerification handles DELETE /api/v1/verification/:property_id.
func (h *VerificationHandler) DeleteVerification(c *gin.Context) {
	propertyID := c.Param("property_id")

	err := h.orchestrator.Delete(c.Request.Context(), h.properties, propertyID)
	if errors.Is(err, domain.ErrNotFound) {
		writeError(c, http.StatusNotFound, "NOT_FOUND", "property not found", "")
		return
	}
	if err != nil {
		h.logger.Error("delete failed", "property_id", propertyID, "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "delete failed", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": propertyID})
}

// SearchProperties handles GET /api/v1/properties.
func (h *VerificationHandler) SearchProperties(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "20"))
	offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	filter := domain.PropertyFilter{
		Owner:        c.Query("owner"),
		SurveyNumber: c.Query("survey"),
	}
	if dt := c.Query("document_type"); dt != "" {
		parsed := domain.ParseDocumentType(dt)
		filter.DocumentType = &parsed
	}

	properties, total, err := h.properties.Search(c.Request.Context(), filter, limit, offset)
	if err != nil {
		h.logger.Error("property search failed", "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL", "search failed", "")
		return
	}

	c.JSON(http.StatusOK, gin.H{"properties": properties, "total": total})
}

// readUpload pulls the multipart file and infers the format hint.
func (h *VerificationHandler) readUpload(c *gin.Context) ([]byte, extraction.Format, bool) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		writeError(c, http.StatusBadRequest, "BAD_INPUT", "multipart field 'file' is required", "")
		return nil, "", false
	}
	if fileHeader.Size > maxUploadBytes {
		writeError(c, http.StatusBadRequest, "BAD_INPUT", "file exceeds upload limit", "")
		return nil, "", false
	}

	f, err := fileHeader.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "BAD_INPUT", "unreadable upload", "")
		return nil, "", false
	}
	defer f.Close()

	document, err := io.ReadAll(io.LimitReader(f, maxUploadBytes+1))
	if err != nil {
		writeError(c, http.StatusBadRequest, "BAD_INPUT", "unreadable upload", "")
		return nil, "", false
	}

	format := extraction.FormatImage
	if strings.EqualFold(filepath.Ext(fileHeader.Filename), ".pdf") {
		format = extraction.FormatPDF
	}
	return document, format, true
}

// writeEngineError maps the engine taxonomy onto HTTP statuses.
func writeEngineError(c *gin.Context, err error) {
	var engErr *engine.Error
	if !errors.As(err, &engErr) {
		writeError(c, http.StatusInternalServerError, "INTERNAL", "unexpected failure", "")
		return
	}

	status := http.StatusInternalServerError
	switch engErr.Kind {
	case engine.KindBadInput:
		status = http.StatusBadRequest
	case engine.KindExternalUnavailable:
		status = http.StatusServiceUnavailable
	case engine.KindDeadlineExceeded:
		status = http.StatusGatewayTimeout
	case engine.KindLedgerRejected:
		status = http.StatusBadGateway
	case engine.KindCancelled:
		status = 499 // client closed request
	}
	writeError(c, status, engErr.Code(), engErr.Message, engErr.Stage)
}

// writeError emits the shared error envelope.
func writeError(c *gin.Context, status int, code, message, stage string) {
	body := gin.H{"code": code, "message": message}
	if stage != "" {
		body["stage"] = stage
	}
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}
