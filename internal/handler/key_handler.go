package handler

import (
	"net/http"

	"passgate/internal/qrsign"

	"github.com/labstack/echo/v4"
)

// QR 署名の公開鍵を配る
type PublicKeySource interface {
	PublicKeyBase64() string
	KeyID() string
}

type KeyHandler struct {
	keys PublicKeySource
}

func NewKeyHandler(keys PublicKeySource) *KeyHandler {
	return &KeyHandler{keys: keys}
}

type publicKeyResponse struct {
	Alg       string `json:"alg"`
	Kid       string `json:"kid"`
	PublicKey string `json:"public_key"`
}

// 公開（認証なし）
func (h *KeyHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/keys/qr", h.qr)
}

func (h *KeyHandler) qr(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "public, max-age=300")
	return c.JSON(http.StatusOK, publicKeyResponse{
		Alg:       qrsign.Algorithm,
		Kid:       h.keys.KeyID(),
		PublicKey: h.keys.PublicKeyBase64(),
	})
}
