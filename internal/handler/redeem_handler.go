package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"passgate/internal/clock"
	"passgate/internal/config"
	"passgate/internal/middleware"
	"passgate/internal/ratelimit"
	"passgate/internal/repository"
	"passgate/internal/usecase"

	"github.com/labstack/echo/v4"
)

type RedeemHandler struct {
	uc      *usecase.RedeemUsecase
	limiter *ratelimit.Limiter
	limit   ratelimit.Config
	clock   clock.Clock
}

func NewRedeemHandler(uc *usecase.RedeemUsecase, limiter *ratelimit.Limiter, limit ratelimit.Config, clk clock.Clock) *RedeemHandler {
	return &RedeemHandler{uc: uc, limiter: limiter, limit: limit, clock: clk}
}

type redeemRequest struct {
	QRToken  string `json:"qr_token"`
	DeviceID string `json:"device_id"`
}

func (h *RedeemHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	e.POST("/redeem", h.redeem,
		middleware.AuthJWT(cfg),
		middleware.TokenVersionGuard(userRepo),
		middleware.StaffRoleGuard(),
	)
}

// POST /redeem
// 業務上の結果（VALID/USED/...）はすべて 200。429 のときは台帳に書かない。
func (h *RedeemHandler) redeem(c echo.Context) error {
	startedAt := h.clock.Now()

	staffID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req redeemRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	//端末とスタッフそれぞれで数える
	keys := []string{"redeem:staff:" + strconv.FormatInt(staffID, 10)}
	if req.DeviceID != "" {
		keys = append(keys, "redeem:device:"+req.DeviceID)
	}
	for _, key := range keys {
		d := h.limiter.Check(c.Request().Context(), key, h.limit)
		if !d.Allowed {
			slog.Warn("redeem rate limited",
				slog.String("key", key),
				slog.Int64("staff_id", staffID),
				slog.String("device_id", req.DeviceID))
			return middleware.TooManyRequests(c, d, h.limiter)
		}
	}

	out, err := h.uc.Redeem(c.Request().Context(), usecase.RedeemInput{
		QRToken:   req.QRToken,
		DeviceID:  req.DeviceID,
		StaffID:   staffID,
		StartedAt: startedAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
