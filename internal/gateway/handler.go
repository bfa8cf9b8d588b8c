package gateway

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/platform/audit"
	"github.com/intake/intake/internal/platform/auth"
	"github.com/intake/intake/internal/record"
	"github.com/intake/intake/pkg/pagination"
)

// Handler exposes the clinician lookup surface over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the gateway routes. Lookup is open to clinicians
// (and admins); erase and the audit trail are admin only.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/records/:id", h.LookupRecord, auth.RequireRole(auth.RoleClinician))
	api.DELETE("/records/:id", h.EraseRecord, auth.RequireRole(auth.RoleAdmin))
	api.GET("/audit", h.SearchAudit, auth.RequireRole(auth.RoleAdmin))
}

func (h *Handler) LookupRecord(c echo.Context) error {
	ident, _ := auth.IdentityFromContext(c.Request().Context())
	id := record.PatientID(c.Param("id"))

	view, err := h.svc.Lookup(c.Request().Context(), ident, id, metaFrom(c))
	if err != nil {
		return accessError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) EraseRecord(c echo.Context) error {
	ident, _ := auth.IdentityFromContext(c.Request().Context())
	id := record.PatientID(c.Param("id"))

	if err := h.svc.Erase(c.Request().Context(), ident, id, metaFrom(c)); err != nil {
		return accessError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SearchAudit(c echo.Context) error {
	ident, _ := auth.IdentityFromContext(c.Request().Context())

	params := audit.SearchParams{
		StaffSubject: c.QueryParam("staff"),
		RecordID:     c.QueryParam("record_id"),
		Action:       c.QueryParam("action"),
		Outcome:      c.QueryParam("outcome"),
	}
	if v := c.QueryParam("start"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "start must be an RFC 3339 timestamp")
		}
		params.Start = &ts
	}
	if v := c.QueryParam("end"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "end must be an RFC 3339 timestamp")
		}
		params.End = &ts
	}

	p := pagination.FromContext(c)
	entries, total, err := h.svc.SearchAudit(c.Request().Context(), ident, params, p.Limit, p.Offset)
	if err != nil {
		return accessError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(entries, total, p.Limit, p.Offset))
}

// accessError maps gateway errors onto the wire. The client-facing messages
// stay coarse; the not-found body never hints at why the record is
// unavailable.
func accessError(err error) error {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "record not found")
	case errors.Is(err, ErrTimeout):
		return echo.NewHTTPError(http.StatusGatewayTimeout, "the request took too long, please try again")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "request failed, please try again")
	}
}

func metaFrom(c echo.Context) RequestMeta {
	rid, _ := c.Get("request_id").(string)
	return RequestMeta{
		RequestID: rid,
		SourceIP:  c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	}
}
