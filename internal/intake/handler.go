package intake

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/intake/intake/internal/record"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/intake", h.SubmitIntake)
}

// SubmitIntake accepts a raw intake payload, stores the validated record and
// returns its identifier. Patients only ever see coarse error messages; the
// detail lands in the server log.
func (h *Handler) SubmitIntake(c echo.Context) error {
	var candidate map[string]any
	if err := c.Bind(&candidate); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "request body must be a JSON object")
	}

	id, err := h.svc.Submit(c.Request().Context(), candidate)
	if err != nil {
		var verr *ValidationError
		switch {
		case errors.As(err, &verr):
			return c.JSON(http.StatusBadRequest, map[string]any{
				"error":  "validation_failed",
				"fields": verr.Fields,
			})
		case errors.Is(err, record.ErrTimeout):
			return echo.NewHTTPError(http.StatusGatewayTimeout, "the service took too long, please try again")
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, "could not save your submission, please try again")
		}
	}
	return c.JSON(http.StatusCreated, map[string]string{"id": id.String()})
}
