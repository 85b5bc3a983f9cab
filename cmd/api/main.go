package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"passgate/internal/clock"
	"passgate/internal/config"
	"passgate/internal/infra/db"
	"passgate/internal/qrsign"
	"passgate/internal/server"

	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	//.env は無くてもよい（本番は環境変数で渡す）
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Error("load .env", slog.Any("error", err))
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	setupLogger(cfg)

	if err := run(cfg); err != nil {
		slog.Error("server stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func setupLogger(cfg config.Config) {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if cfg.IsProd() {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(h))
}

func run(cfg config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	//DB接続
	gormDB, err := db.Connect()
	if err != nil {
		return err
	}
	if err := db.Migrate(gormDB); err != nil {
		return err
	}

	signer, err := loadSigner(cfg)
	if err != nil {
		return err
	}

	app, err := server.Build(cfg, gormDB, signer, clock.Real())
	if err != nil {
		return err
	}

	if cfg.AdminEmail != "" {
		if err := app.Auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			return err
		}
	}

	addr := cfg.Port
	if addr != "" && addr[0] != ':' {
		addr = ":" + addr
	}

	serveErr := server.Start(ctx, app.Echo, addr, shutdownTimeout)

	//書き込み中の台帳を待つ
	closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := app.Recorder.Close(closeCtx); err != nil {
		slog.Warn("scan ledger did not drain", slog.Any("error", err))
	}

	return serveErr
}

// 鍵が無いのは dev のときだけ（config.Load で確認済み）
func loadSigner(cfg config.Config) (*qrsign.Signer, error) {
	pemBytes, err := cfg.LoadQRSigningKeyPEM()
	if err != nil {
		return nil, err
	}

	if pemBytes == nil {
		key, err := qrsign.GenerateKey()
		if err != nil {
			return nil, err
		}
		slog.Warn("QR signing key not configured, using an ephemeral key (dev only)")
		return qrsign.NewSigner(key)
	}

	key, err := qrsign.ParsePrivateKeyPEM(pemBytes)
	if err != nil {
		return nil, err
	}
	return qrsign.NewSigner(key)
}
