// Package audithttp exposes the audit timeline over HTTP.
package audithttp

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/backoffice/internal/audit"
	"github.com/odyssey-erp/backoffice/internal/platform/httpx"
	"github.com/odyssey-erp/backoffice/internal/shared"
)

const (
	dateLayout       = "2006-01-02"
	defaultDateRange = 7 * 24 * time.Hour
	maxDateRange     = 90 * 24 * time.Hour
)

// TimelineService is the read contract the handler depends on.
type TimelineService interface {
	Timeline(ctx context.Context, filter audit.TimelineFilter) (audit.Result, error)
	Export(ctx context.Context, filter audit.TimelineFilter) ([]audit.Entry, error)
}

// Handler serves the audit timeline and its CSV export.
type Handler struct {
	logger  *slog.Logger
	service TimelineService
	now     func() time.Time
}

// NewHandler builds an audit handler.
func NewHandler(logger *slog.Logger, service TimelineService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, now: time.Now}
}

func (h *Handler) timeline(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	result, err := h.service.Timeline(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) export(w http.ResponseWriter, r *http.Request) {
	filter, err := h.parseFilter(r)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	rows, err := h.service.Export(r.Context(), filter)
	if err != nil {
		httpx.RespondError(w, r, h.logger, err)
		return
	}
	var buf bytes.Buffer
	if err := audit.WriteCSV(&buf, rows); err != nil {
		httpx.RespondError(w, r, h.logger, fmt.Errorf("encode csv: %w", err))
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="audit-timeline.csv"`)
	if _, err := w.Write(buf.Bytes()); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) parseFilter(r *http.Request) (audit.TimelineFilter, error) {
	q := r.URL.Query()
	toStr := strings.TrimSpace(q.Get("to"))
	if toStr == "" {
		toStr = h.now().UTC().Format(dateLayout)
	}
	to, err := time.Parse(dateLayout, toStr)
	if err != nil {
		return audit.TimelineFilter{}, invalid("to")
	}
	fromStr := strings.TrimSpace(q.Get("from"))
	if fromStr == "" {
		fromStr = to.Add(-defaultDateRange).Format(dateLayout)
	}
	from, err := time.Parse(dateLayout, fromStr)
	if err != nil {
		return audit.TimelineFilter{}, invalid("from")
	}
	if from.After(to) || to.Sub(from) > maxDateRange {
		return audit.TimelineFilter{}, invalid("range")
	}

	page, err := positiveInt(q.Get("page"), 1)
	if err != nil {
		return audit.TimelineFilter{}, invalid("page")
	}
	pageSize, err := positiveInt(q.Get("page_size"), 0)
	if err != nil {
		return audit.TimelineFilter{}, invalid("page_size")
	}
	var actorID int64
	if v := strings.TrimSpace(q.Get("actor")); v != "" {
		actorID, err = strconv.ParseInt(v, 10, 64)
		if err != nil || actorID <= 0 {
			return audit.TimelineFilter{}, invalid("actor")
		}
	}

	return audit.TimelineFilter{
		From:     from,
		To:       to,
		ActorID:  actorID,
		Entity:   q.Get("entity"),
		EntityID: q.Get("entity_id"),
		Action:   q.Get("action"),
		Page:     page,
		PageSize: pageSize,
	}, nil
}

func positiveInt(raw string, fallback int) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("not a positive integer: %q", raw)
	}
	return v, nil
}

func invalid(field string) error {
	return fmt.Errorf("%w: invalid %s", shared.ErrInvalidInput, field)
}
