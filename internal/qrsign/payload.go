package qrsign

import (
	"encoding/json"
	"strings"
)

// QR コードにそのまま載せる JSON
type Payload struct {
	Token string `json:"token"`
	Sig   string `json:"sig"`
	Exp   int64  `json:"exp"`
}

// 署名付きかどうか
func (p Payload) Signed() bool {
	return p.Sig != ""
}

// ParsePayload はスキャンした文字列を読む。
// JSON でない（または token が無い）ときは文字列そのものを署名なしトークンとして扱う。
func ParsePayload(raw string) Payload {
	trimmed := strings.TrimSpace(raw)
	if strings.HasPrefix(trimmed, "{") {
		var p Payload
		if err := json.Unmarshal([]byte(trimmed), &p); err == nil && p.Token != "" {
			return p
		}
	}
	return Payload{Token: trimmed}
}

// Encode は QR に載せる JSON 文字列を返す
func (p Payload) Encode() (string, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
