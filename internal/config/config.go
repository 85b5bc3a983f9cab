package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"passgate/internal/ratelimit"
)

// Configはアプリ全体の設定
type Config struct {
	Port  string // サーバーポート（8080）
	GoEnv string // dev/prod

	JWTSecret        string // アクセストークン署名シークレット
	RedemptionSecret string // 入場トークン（HS256）の鍵

	QRSigningKeyPEM  string // ES256 秘密鍵（PEM）
	QRSigningKeyFile string // 上をファイルで渡すとき

	TokenTTL time.Duration // 入場トークンの有効期限

	RedeemRateLimit  ratelimit.Config
	ClaimRateLimit   ratelimit.Config
	IssueRateLimit   ratelimit.Config
	RateLimitMaxKeys int // カウンタを持つキーの上限

	LedgerWriteTimeout time.Duration // 台帳追記のタイムアウト
	LedgerMaxInFlight  int           // 同時に書き込み中にできる台帳追記の上限
	RevocationOverlap  time.Duration // 失効同期で since から戻す幅

	AdminEmail    string // 起動時に用意する管理者（任意）
	AdminPassword string
}

func (c Config) IsDev() bool {
	return c.GoEnv == "dev"
}

func (c Config) IsProd() bool {
	return c.GoEnv == "prod"
}

// Loadは環境変数
func Load() (Config, error) {
	cfg := Config{
		Port:  getenv("PORT", "8080"),
		GoEnv: getenv("GO_ENV", "dev"),

		JWTSecret:        os.Getenv("JWT_SECRET"),
		RedemptionSecret: os.Getenv("REDEMPTION_SECRET"),

		QRSigningKeyPEM:  os.Getenv("QR_SIGNING_KEY_PEM"),
		QRSigningKeyFile: os.Getenv("QR_SIGNING_KEY_FILE"),

		AdminEmail:    os.Getenv("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
	}

	var err error
	if cfg.TokenTTL, err = seconds("TOKEN_TTL_SECONDS", 300); err != nil {
		return Config{}, err
	}
	if cfg.RedeemRateLimit, err = rateLimit("REDEEM", 30, 10_000); err != nil {
		return Config{}, err
	}
	if cfg.ClaimRateLimit, err = rateLimit("CLAIM", 5, 60_000); err != nil {
		return Config{}, err
	}
	if cfg.IssueRateLimit, err = rateLimit("ISSUE", 20, 60_000); err != nil {
		return Config{}, err
	}
	if cfg.RateLimitMaxKeys, err = atoi("RATE_LIMIT_MAX_KEYS", 10_000); err != nil {
		return Config{}, err
	}
	if cfg.LedgerWriteTimeout, err = millis("LEDGER_WRITE_TIMEOUT_MS", 5_000); err != nil {
		return Config{}, err
	}
	if cfg.LedgerMaxInFlight, err = atoi("LEDGER_MAX_IN_FLIGHT", 256); err != nil {
		return Config{}, err
	}
	if cfg.RevocationOverlap, err = seconds("REVOCATION_SYNC_OVERLAP_SECONDS", 30); err != nil {
		return Config{}, err
	}

	//必須チェック
	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("JWT_SECRET is required")
	}
	if cfg.RedemptionSecret == "" {
		return Config{}, fmt.Errorf("REDEMPTION_SECRET is required")
	}
	if cfg.RedemptionSecret == cfg.JWTSecret {
		return Config{}, fmt.Errorf("REDEMPTION_SECRET must differ from JWT_SECRET")
	}
	if cfg.QRSigningKeyPEM == "" && cfg.QRSigningKeyFile == "" && !cfg.IsDev() {
		return Config{}, fmt.Errorf("QR_SIGNING_KEY_PEM or QR_SIGNING_KEY_FILE is required")
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("TOKEN_TTL_SECONDS must be positive")
	}
	if cfg.RateLimitMaxKeys <= 0 {
		return Config{}, fmt.Errorf("RATE_LIMIT_MAX_KEYS must be positive")
	}
	if cfg.LedgerMaxInFlight <= 0 {
		return Config{}, fmt.Errorf("LEDGER_MAX_IN_FLIGHT must be positive")
	}
	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return Config{}, fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return cfg, nil
}

// QR 署名鍵の PEM を返す。未設定なら nil（dev では使い捨て鍵を作る）
func (c Config) LoadQRSigningKeyPEM() ([]byte, error) {
	if c.QRSigningKeyPEM != "" {
		return []byte(c.QRSigningKeyPEM), nil
	}
	if c.QRSigningKeyFile != "" {
		b, err := os.ReadFile(c.QRSigningKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read QR_SIGNING_KEY_FILE: %w", err)
		}
		return b, nil
	}
	return nil, nil
}

func rateLimit(prefix string, defMax int, defWindowMs int) (ratelimit.Config, error) {
	maxReq, err := atoi(prefix+"_RATE_LIMIT", defMax)
	if err != nil {
		return ratelimit.Config{}, err
	}
	window, err := millis(prefix+"_RATE_WINDOW_MS", defWindowMs)
	if err != nil {
		return ratelimit.Config{}, err
	}

	c := ratelimit.Config{Window: window, MaxRequests: maxReq}
	if err := c.Validate(); err != nil {
		return ratelimit.Config{}, fmt.Errorf("%s: %w", prefix, err)
	}
	return c, nil
}

func getenv(key string, def string) string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	return v
}

func atoi(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be number: %w", key, err)
	}
	return i, nil
}

func seconds(key string, def int) (time.Duration, error) {
	i, err := atoi(key, def)
	return time.Duration(i) * time.Second, err
}

func millis(key string, def int) (time.Duration, error) {
	i, err := atoi(key, def)
	return time.Duration(i) * time.Millisecond, err
}
