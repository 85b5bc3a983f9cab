package model

import "time"

// スキャナへ配る失効エントリ
type RevocationEntry struct {
	PassID    string    `json:"pass_id"`
	RevokedAt time.Time `json:"revoked_at"`
}
