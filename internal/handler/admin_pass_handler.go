package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"passgate/internal/config"
	"passgate/internal/domain/model"
	"passgate/internal/middleware"
	"passgate/internal/repository"
	"passgate/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 運用者向け（失効・台帳参照）
type AdminPassHandler struct {
	passUC  *usecase.PassUsecase
	scanUC  *usecase.ScanUsecase
	auditUC *usecase.AuditUsecase
}

func NewAdminPassHandler(passUC *usecase.PassUsecase, scanUC *usecase.ScanUsecase, auditUC *usecase.AuditUsecase) *AdminPassHandler {
	return &AdminPassHandler{passUC: passUC, scanUC: scanUC, auditUC: auditUC}
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminPassHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	admin := e.Group(
		"/admin",
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.AdminRoleGuard(),
	)

	admin.POST("/passes/:id/revoke", h.revoke)
	admin.GET("/scans", h.scans)
	admin.GET("/audit-logs", h.auditLogs)
}

func (h *AdminPassHandler) revoke(c echo.Context) error {
	var req revokeRequest
	//body は任意
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&req); err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
		}
	}

	actorID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.passUC.Revoke(c.Request().Context(), actorID, c.Param("id"), strings.TrimSpace(req.Reason))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// GET /admin/scans?pass_id&device_id&staff_id&result&from&to&limit&offset
func (h *AdminPassHandler) scans(c echo.Context) error {
	var f repository.ScanEventFilter

	if v := c.QueryParam("pass_id"); v != "" {
		f.PassID = &v
	}
	if v := c.QueryParam("device_id"); v != "" {
		f.DeviceID = &v
	}
	if v := c.QueryParam("staff_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid staff_id"})
		}
		f.StaffID = &id
	}
	if v := c.QueryParam("result"); v != "" {
		r := model.RedeemResult(strings.ToUpper(v))
		f.Result = &r
	}

	var ok bool
	if f.From, ok = queryTime(c, "from"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
	}
	if f.To, ok = queryTime(c, "to"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
	}
	if f.Limit, ok = queryInt(c, "limit", 50); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}

	out, err := h.scanUC.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

// GET /admin/audit-logs?actor_user_id&action&resource_type&resource_id&from&to&limit&offset
func (h *AdminPassHandler) auditLogs(c echo.Context) error {
	var f repository.AuditLogFilter

	if v := c.QueryParam("actor_user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid actor_user_id"})
		}
		f.ActorUserID = &id
	}
	if v := c.QueryParam("action"); v != "" {
		a := model.AuditAction(strings.ToUpper(v))
		f.Action = &a
	}
	if v := c.QueryParam("resource_type"); v != "" {
		rt := model.AuditResourceType(strings.ToLower(v))
		f.ResourceType = &rt
	}
	if v := c.QueryParam("resource_id"); v != "" {
		f.ResourceID = &v
	}

	var ok bool
	if f.CreatedFrom, ok = queryTime(c, "from"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid from"})
	}
	if f.CreatedTo, ok = queryTime(c, "to"); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid to"})
	}
	if f.Limit, ok = queryInt(c, "limit", 50); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	if f.Offset, ok = queryInt(c, "offset", 0); !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}

	out, err := h.auditUC.List(c.Request().Context(), f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func queryTime(c echo.Context, name string) (*time.Time, bool) {
	v := c.QueryParam(name)
	if v == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339Nano, v)
	if err != nil {
		return nil, false
	}
	return &t, true
}
