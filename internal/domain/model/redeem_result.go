package model

// スキャン結果。5種類で閉じている。
// 追加するときは AllRedeemResults と、これを switch している箇所
// （scanner.Display / usecase の分類 / テスト）を全部更新する。
type RedeemResult string

const (
	RedeemResultValid   RedeemResult = "VALID"
	RedeemResultUsed    RedeemResult = "USED"
	RedeemResultExpired RedeemResult = "EXPIRED"
	RedeemResultInvalid RedeemResult = "INVALID"
	RedeemResultRevoked RedeemResult = "REVOKED"
)

var AllRedeemResults = []RedeemResult{
	RedeemResultValid,
	RedeemResultUsed,
	RedeemResultExpired,
	RedeemResultInvalid,
	RedeemResultRevoked,
}

func (r RedeemResult) IsKnown() bool {
	for _, v := range AllRedeemResults {
		if v == r {
			return true
		}
	}
	return false
}

// 条件付き UPDATE が 0 件だったときの再分類。
// 想定外の status は INVALID に倒す。新しい終端状態を増やすならここを見直す。
func ClassifyLostRedeem(found bool, status PassStatus) RedeemResult {
	if !found {
		return RedeemResultInvalid
	}
	switch status {
	case PassStatusRedeemed:
		return RedeemResultUsed
	case PassStatusRevoked:
		return RedeemResultRevoked
	default:
		return RedeemResultInvalid
	}
}
