package medicalrecord

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/medrec/internal/platform/auth"
)

const (
	msgNotFound     = "Medical record not found"
	msgCreated      = "Medical record created successfully"
	msgDeleted      = "Medical record deleted successfully"
	msgFetchFailed  = "Error fetching medical records"
	msgRecentFailed = "Error fetching recent records"
	msgCreateFailed = "Error creating medical record"
	msgDeleteFailed = "Error deleting medical record"
	msgInvalidBody  = "invalid request body"
)

// Handler provides HTTP handlers for medical records.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes mounts the record routes on g, which must already run the
// authentication middleware.
func (h *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/my-records", h.ListOwn, auth.Authenticated())
	g.GET("/recent", h.ListRecent, auth.Require(auth.DoctorsOnly))
	g.POST("/create", h.Create, auth.Require(auth.DoctorsOnly))
	g.DELETE("/delete/:id", h.Delete, auth.Require(auth.DoctorsOnly))
	g.GET("/all", h.ListAll, auth.Require(auth.DispatcherOrAdmin))
}

// serverError logs the datastore failure and hides it from the response.
func serverError(c echo.Context, op, msg string, err error) error {
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("op", op).Msg(msg)
	return echo.NewHTTPError(http.StatusInternalServerError, msg).SetInternal(err)
}

func caller(c echo.Context) auth.Identity {
	id, _ := auth.IdentityFromContext(c.Request().Context())
	return id
}

func (h *Handler) ListOwn(c echo.Context) error {
	items, err := h.svc.ListOwn(c.Request().Context(), caller(c))
	if err != nil {
		return serverError(c, "list_own", msgFetchFailed, err)
	}
	return c.JSON(http.StatusOK, items)
}

func (h *Handler) ListRecent(c echo.Context) error {
	items, err := h.svc.ListRecent(c.Request().Context())
	if err != nil {
		return serverError(c, "list_recent", msgRecentFailed, err)
	}
	return c.JSON(http.StatusOK, items)
}

type createResponse struct {
	Message string         `json:"message"`
	Record  *MedicalRecord `json:"record"`
}

func (h *Handler) Create(c echo.Context) error {
	var req CreateRequest
	if err := c.Bind(&req); err != nil {
		// c.Bind already returns an *echo.HTTPError; wrapped so this message wins.
		return echo.NewHTTPError(http.StatusBadRequest, msgInvalidBody).SetInternal(fmt.Errorf("bind: %w", err))
	}
	rec, err := h.svc.Create(c.Request().Context(), caller(c), req)
	if err != nil {
		return serverError(c, "create", msgCreateFailed, err)
	}
	return c.JSON(http.StatusCreated, createResponse{Message: msgCreated, Record: rec})
}

type deleteResponse struct {
	Message  string `json:"message"`
	RecordID string `json:"recordId"`
}

func (h *Handler) Delete(c echo.Context) error {
	raw := c.Param("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		// A key that cannot exist is reported like a missing one.
		return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
	}
	if err := h.svc.Delete(c.Request().Context(), id); err != nil {
		if errors.Is(err, ErrRecordNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, msgNotFound)
		}
		return serverError(c, "delete", msgDeleteFailed, err)
	}
	return c.JSON(http.StatusOK, deleteResponse{Message: msgDeleted, RecordID: raw})
}

func (h *Handler) ListAll(c echo.Context) error {
	rows, err := h.svc.ListAll(c.Request().Context())
	if err != nil {
		return serverError(c, "list_all", msgFetchFailed, err)
	}
	return c.JSON(http.StatusOK, rows)
}
