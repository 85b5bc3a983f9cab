package model

import "time"

type PassStatus string

const (
	PassStatusCreated  PassStatus = "created"
	PassStatusClaimed  PassStatus = "claimed"
	PassStatusRedeemed PassStatus = "redeemed"
	PassStatusRevoked  PassStatus = "revoked"
	PassStatusExpired  PassStatus = "expired"
)

// 終端状態（これ以上遷移しない）
func (s PassStatus) IsTerminal() bool {
	switch s {
	case PassStatusRedeemed, PassStatusRevoked, PassStatusExpired:
		return true
	default:
		return false
	}
}

// 入場パス。
// status の更新は必ず「現在の status を条件にした UPDATE」で行う。
type Pass struct {
	ID string `gorm:"type:varchar(64);primaryKey" json:"pass_id"`

	//発行者
	IssuerUserID int64 `gorm:"not null;index" json:"issuer_user_id"`

	//claim されるまで nil
	OwnerUserID *int64 `gorm:"index" json:"owner_user_id"`

	//claim シークレットの SHA-256。claim 時に NULL に戻す
	ClaimTokenHash *string `gorm:"type:varchar(128);uniqueIndex" json:"-"`

	Status PassStatus `gorm:"type:varchar(20);not null;index" json:"status"`

	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	ClaimedAt  *time.Time `json:"claimed_at"`
	RedeemedAt *time.Time `json:"redeemed_at"`

	//入場処理したスタッフと端末（redeem 成功時だけ）
	RedeemedByStaffID *int64  `json:"redeemed_by_staff_id"`
	RedeemedDeviceID  *string `gorm:"type:varchar(128)" json:"redeemed_device_id"`

	//失効（revocation 配信の差分キー）
	RevokedAt    *time.Time `gorm:"index" json:"revoked_at"`
	RevokeReason string     `gorm:"type:varchar(255)" json:"revoke_reason,omitempty"`

	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// 現在の所有者か
func (p Pass) IsOwnedBy(userID int64) bool {
	return p.OwnerUserID != nil && *p.OwnerUserID == userID
}
