package scanner

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// Refresh は公開鍵の取り直しと失効リストの同期を並行で行う。
// どちらかが失敗したら最初のエラーを返す（鍵は古いものが残る）。
func Refresh(ctx context.Context, keys *KeyCache, revocations *RevocationSet, fetcher RevocationFetcher) (int, error) {
	var added int

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if _, err := keys.Refresh(gctx); err != nil {
			return fmt.Errorf("refresh public key: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		n, err := revocations.Sync(gctx, fetcher)
		if err != nil {
			return fmt.Errorf("sync revocations: %w", err)
		}
		added = n
		return nil
	})

	err := g.Wait()
	return added, err
}
