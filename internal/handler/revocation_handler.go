package handler

import (
	"net/http"
	"time"

	"passgate/internal/config"
	"passgate/internal/middleware"
	"passgate/internal/repository"
	"passgate/internal/usecase"

	"github.com/labstack/echo/v4"
)

// スキャナ向けの失効リスト差分
type RevocationHandler struct {
	uc *usecase.RevocationUsecase
}

func NewRevocationHandler(uc *usecase.RevocationUsecase) *RevocationHandler {
	return &RevocationHandler{uc: uc}
}

func (h *RevocationHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.GET("/revocations", h.sync,
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.StaffRoleGuard(),
	)
}

// GET /revocations?since=2026-05-01T12:00:00Z
// GET /revocations?cursor=...（has_more の続き）
func (h *RevocationHandler) sync(c echo.Context) error {
	var since *time.Time
	if v := c.QueryParam("since"); v != "" {
		t, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid since"})
		}
		since = &t
	}

	out, err := h.uc.Sync(c.Request().Context(), since, c.QueryParam("cursor"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
