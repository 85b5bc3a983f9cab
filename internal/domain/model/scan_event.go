package model

import "time"

// スキャン台帳の1行。追記のみ（更新・削除しない）。
type ScanEvent struct {
	ID string `gorm:"type:varchar(64);primaryKey" json:"scan_id"`

	//トークンが壊れていると pass_id は取れない
	PassID *string `gorm:"type:varchar(64);index" json:"pass_id"`

	StaffID  int64        `gorm:"not null;index" json:"scanner_staff_id"`
	DeviceID string       `gorm:"type:varchar(128);not null;index" json:"device_id"`
	Result   RedeemResult `gorm:"type:varchar(20);not null;index" json:"result"`

	//分類の詳細（signature / malformed / audience など）
	Reason string `gorm:"type:varchar(64)" json:"reason,omitempty"`

	LatencyMs int64     `gorm:"not null" json:"latency_ms"`
	Ts        time.Time `gorm:"not null;index" json:"ts"`
}
