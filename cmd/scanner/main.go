// scanner はドア用のコマンドラインクライアント。
// 標準入力から1行ずつ QR の中身を読み、端末側で事前判定してから /redeem に送る。
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"passgate/internal/clock"
	"passgate/internal/domain/model"
	"passgate/internal/scanner"

	"github.com/spf13/pflag"
)

type options struct {
	baseURL      string
	token        string
	deviceID     string
	keyMaxAge    time.Duration
	syncInterval time.Duration
	offline      bool
}

func main() {
	var opts options
	pflag.StringVar(&opts.baseURL, "api", envOr("PASSGATE_API", "http://localhost:8080"), "バックエンドの URL")
	pflag.StringVar(&opts.token, "token", os.Getenv("PASSGATE_TOKEN"), "スタッフのアクセストークン")
	pflag.StringVar(&opts.deviceID, "device", envOr("PASSGATE_DEVICE_ID", hostname()), "端末 ID")
	pflag.DurationVar(&opts.keyMaxAge, "key-max-age", time.Hour, "公開鍵キャッシュの最大年齢")
	pflag.DurationVar(&opts.syncInterval, "sync-interval", time.Minute, "失効リストの同期間隔")
	pflag.BoolVar(&opts.offline, "precheck-only", false, "事前判定だけ行い /redeem に送らない")
	pflag.Parse()

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, opts); err != nil {
		slog.Error("scanner stopped", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if opts.token == "" && !opts.offline {
		return fmt.Errorf("--token is required")
	}

	clk := clock.Real()
	client := scanner.NewClient(opts.baseURL, opts.token)
	keys := scanner.NewKeyCache(client, opts.keyMaxAge, clk)
	revocations := scanner.NewRevocationSet()
	pre := scanner.NewPrechecker(keys, revocations, clk)

	//起動時に一度そろえる。失敗してもオフラインで動ける
	if _, err := scanner.Refresh(ctx, keys, revocations, client); err != nil {
		slog.Warn("initial refresh failed", slog.Any("error", err))
	}
	go syncLoop(ctx, opts.syncInterval, revocations, client)

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		sc.Buffer(make([]byte, 0, 4096), 64*1024)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-lines:
			if !ok {
				return nil
			}
			if strings.TrimSpace(raw) == "" {
				continue
			}
			scan(ctx, opts, pre, client, raw)
		}
	}
}

func scan(ctx context.Context, opts options, pre *scanner.Prechecker, client *scanner.Client, raw string) {
	v := pre.Precheck(ctx, raw)
	if !v.Forward {
		show(v.Result, v.PassID, "local:"+v.Reason)
		return
	}
	if opts.offline {
		fmt.Println("-> would forward to backend (pass_id:", v.PassID+")")
		return
	}

	res, err := client.Redeem(ctx, raw, opts.deviceID)
	if err != nil {
		if wait, ok := scanner.IsRateLimited(err); ok {
			fmt.Printf("!! rate limited, retry in %s\n", wait)
			return
		}
		slog.Error("redeem failed", slog.Any("error", err))
		fmt.Println("!! backend unavailable: verify manually")
		return
	}

	passID := v.PassID
	if res.PassID != nil {
		passID = *res.PassID
	}
	show(res.Result, passID, "")
	if res.Result == model.RedeemResultUsed && res.RedeemedAt != nil {
		fmt.Printf("   first used at %s\n", res.RedeemedAt.Local().Format(time.DateTime))
	}
}

func show(r model.RedeemResult, passID, note string) {
	d := scanner.Display(r)
	line := fmt.Sprintf("%s [%s] %s %s", d.Icon, d.Color, r, d.Message)
	if passID != "" {
		line += " pass=" + passID
	}
	if note != "" {
		line += " (" + note + ")"
	}
	fmt.Println(line)
	if d.ManualCheck {
		fmt.Println("   -> manual check")
	}
}

func syncLoop(ctx context.Context, interval time.Duration, revocations *scanner.RevocationSet, client *scanner.Client) {
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := revocations.Sync(ctx, client)
			if err != nil {
				slog.Warn("revocation sync failed", slog.Any("error", err))
				continue
			}
			if n > 0 {
				slog.Info("revocations synced", slog.Int("added", n), slog.Int("total", revocations.Len()))
			}
		}
	}
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "scanner"
	}
	return h
}
