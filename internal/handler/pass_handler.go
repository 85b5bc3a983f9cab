package handler

import (
	"net/http"
	"strings"

	"passgate/internal/config"
	"passgate/internal/middleware"
	"passgate/internal/ratelimit"
	"passgate/internal/repository"
	"passgate/internal/usecase"

	"github.com/labstack/echo/v4"
)

// 所有者側の API（作成・claim・トークン発行・参照）
type PassHandler struct {
	passUC  *usecase.PassUsecase
	tokenUC *usecase.TokenUsecase
	limiter *ratelimit.Limiter
	claimRL ratelimit.Config
	issueRL ratelimit.Config
}

func NewPassHandler(
	passUC *usecase.PassUsecase,
	tokenUC *usecase.TokenUsecase,
	limiter *ratelimit.Limiter,
	claimRL ratelimit.Config,
	issueRL ratelimit.Config,
) *PassHandler {
	return &PassHandler{
		passUC:  passUC,
		tokenUC: tokenUC,
		limiter: limiter,
		claimRL: claimRL,
		issueRL: issueRL,
	}
}

type claimRequest struct {
	ClaimSecret string `json:"claim_secret"`
}

type issueTokenRequest struct {
	PassID string `json:"pass_id"`
}

func (h *PassHandler) RegisterRoutes(e *echo.Echo, cfg config.Config, userRepo repository.UserRepository) {
	auth := []echo.MiddlewareFunc{middleware.AuthJWT(cfg), middleware.TokenVersionGuard(userRepo)}
	claimLimit := middleware.RateLimitByUser(h.limiter, "claim", h.claimRL)
	issueLimit := middleware.RateLimitByUser(h.limiter, "issue", h.issueRL)

	g := e.Group("/passes", auth...)
	g.POST("", h.create)
	g.GET("", h.list)
	g.GET("/:id", h.detail)
	g.POST("/:id/claim", h.claim, claimLimit)
	g.POST("/:id/issue-token", h.issueToken, issueLimit)

	//body で pass_id を受ける形
	e.POST("/tokens", h.issueTokenByBody, append(auth, issueLimit)...)
}

func (h *PassHandler) create(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.passUC.Create(c.Request().Context(), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, out)
}

func (h *PassHandler) list(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	limit, ok := queryInt(c, "limit", 20)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid limit"})
	}
	offset, ok := queryInt(c, "offset", 0)
	if !ok {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid offset"})
	}

	out, err := h.passUC.ListMine(c.Request().Context(), userID, limit, offset)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PassHandler) detail(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.passUC.Get(c.Request().Context(), userID, c.Param("id"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PassHandler) claim(c echo.Context) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	var req claimRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}

	out, err := h.passUC.Claim(c.Request().Context(), userID, c.Param("id"), strings.TrimSpace(req.ClaimSecret))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}

func (h *PassHandler) issueToken(c echo.Context) error {
	return h.issue(c, c.Param("id"))
}

func (h *PassHandler) issueTokenByBody(c echo.Context) error {
	var req issueTokenRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid body"})
	}
	return h.issue(c, strings.TrimSpace(req.PassID))
}

func (h *PassHandler) issue(c echo.Context, passID string) error {
	userID, ok := getUserIDFromContext(c)
	if !ok {
		return c.JSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthorized"})
	}

	out, err := h.tokenUC.Issue(c.Request().Context(), userID, passID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
