package model

import "time"

// 運用者の操作の種類
type AuditAction string

const (
	//パスを失効させた
	AuditActionRevokePass AuditAction = "REVOKE_PASS"
	//ロールを変更した（スタッフの付与など）
	AuditActionSetUserRole AuditAction = "SET_USER_ROLE"
	//強制ログアウト（token_version を上げた）
	AuditActionForceLogout AuditAction = "FORCE_LOGOUT"
)

// 何に対する操作か
type AuditResourceType string

const (
	AuditResourcePass AuditResourceType = "pass"
	AuditResourceUser AuditResourceType = "user"
)

// 監査ログ（管理者操作ログ）。
// 「誰が」「何を」「どの対象に」「どう変えたか」を残す。
// 入場スキャンの記録は ScanEvent 側で、ここには入れない。
type AuditLog struct {
	ID int64 `gorm:"primaryKey;autoIncrement" json:"id"`

	//操作した管理者
	ActorUserID int64 `gorm:"not null;index" json:"actor_user_id"`

	Action AuditAction `gorm:"type:varchar(50);not null;index" json:"action"`

	ResourceType AuditResourceType `gorm:"type:varchar(50);not null;index" json:"resource_type"`

	//pass_id か user id（文字列にそろえる）
	ResourceID string `gorm:"type:varchar(64);not null;index" json:"resource_id"`

	//変更前後（JSON文字列）
	BeforeJSON string `gorm:"type:text" json:"before_json"`
	AfterJSON  string `gorm:"type:text" json:"after_json"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}
