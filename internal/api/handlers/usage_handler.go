package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/space-evaluation/backend-go/internal/service"
)

type UsageHandler struct {
	service *service.UsageService
}

func NewUsageHandler(service *service.UsageService) *UsageHandler {
	return &UsageHandler{service: service}
}

// GetReport serves the accumulated HTML report.
func (h *UsageHandler) GetReport(c *gin.Context) {
	doc, err := h.service.Report(c.Request.Context())
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", []byte(doc))
}

func (h *UsageHandler) GetSnapshot(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Request.Context(), c.Param("bucket"))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *UsageHandler) GetPrefixHistory(c *gin.Context) {
	bucket := c.Param("bucket")
	prefixes := queryList(c, "prefix")
	limit := queryInt(c, "limit", 30)

	points, err := h.service.PrefixHistory(c.Request.Context(), bucket, prefixes, limit)
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket, "data": points})
}

func (h *UsageHandler) GetRuns(c *gin.Context) {
	bucket := c.Param("bucket")
	runs, err := h.service.Runs(c.Request.Context(), bucket, queryInt(c, "limit", 10))
	if err != nil {
		h.handleError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"bucket": bucket, "data": runs})
}

func (h *UsageHandler) handleError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrHistoryDisabled):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		log.Error().Err(err).Str("path", c.FullPath()).Msg("usage request failed")
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// queryList accepts both ?k=a&k=b and ?k=a,b.
func queryList(c *gin.Context, key string) []string {
	var out []string
	for _, v := range c.QueryArray(key) {
		for _, part := range strings.Split(v, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}

func queryInt(c *gin.Context, key string, def int) int {
	if v, err := strconv.Atoi(c.Query(key)); err == nil && v > 0 {
		return v
	}
	return def
}
