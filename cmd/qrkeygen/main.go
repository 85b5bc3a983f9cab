// qrkeygen は QR 署名用の P-256 秘密鍵（PEM）を作る。
// 標準出力には kid と base64url の公開鍵を出す。
package main

import (
	"errors"
	"fmt"
	"os"

	"passgate/internal/qrsign"

	"github.com/spf13/pflag"
)

func main() {
	out := pflag.StringP("out", "o", "qr_signing_key.pem", "書き出す PEM ファイル")
	force := pflag.BoolP("force", "f", false, "既存ファイルを上書きする")
	pflag.Parse()

	if err := run(*out, *force); err != nil {
		fmt.Fprintln(os.Stderr, "qrkeygen:", err)
		os.Exit(1)
	}
}

func run(out string, force bool) error {
	if !force {
		if _, err := os.Stat(out); err == nil {
			return fmt.Errorf("%s already exists (use --force)", out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	key, err := qrsign.GenerateKey()
	if err != nil {
		return err
	}
	pemBytes, err := qrsign.EncodePrivateKeyPEM(key)
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, pemBytes, 0o600); err != nil {
		return err
	}

	signer, err := qrsign.NewSigner(key)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", out)
	fmt.Printf("alg:        %s\n", qrsign.Algorithm)
	fmt.Printf("kid:        %s\n", signer.KeyID())
	fmt.Printf("public_key: %s\n", signer.PublicKeyBase64())
	return nil
}
