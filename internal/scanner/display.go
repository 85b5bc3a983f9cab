package scanner

import (
	"fmt"

	"passgate/internal/domain/model"
)

// 画面表示（アイコン・色・メッセージ）
type DisplayInfo struct {
	Icon    string
	Color   string
	Message string
	// スタッフが目視確認に切り替えるべきか
	ManualCheck bool
}

// Display は5種類の結果をそれぞれ別の見た目にする。
// 結果を増やしたらここも増やす（未知の値は panic ではなく Unknown 表示）。
func Display(r model.RedeemResult) DisplayInfo {
	switch r {
	case model.RedeemResultValid:
		return DisplayInfo{Icon: "✔", Color: "green", Message: "Entry OK"}
	case model.RedeemResultUsed:
		return DisplayInfo{Icon: "✖", Color: "red", Message: "Already used"}
	case model.RedeemResultExpired:
		return DisplayInfo{Icon: "⏱", Color: "yellow", Message: "QR expired: ask guest to refresh", ManualCheck: true}
	case model.RedeemResultInvalid:
		return DisplayInfo{Icon: "?", Color: "orange", Message: "Invalid QR: verify manually", ManualCheck: true}
	case model.RedeemResultRevoked:
		return DisplayInfo{Icon: "⛔", Color: "red", Message: "Pass revoked"}
	default:
		return DisplayInfo{Icon: "!", Color: "gray", Message: fmt.Sprintf("Unknown result %q", string(r)), ManualCheck: true}
	}
}
