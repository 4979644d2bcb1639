package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/width"
)

var hundred = decimal.NewFromInt(100)

// MaxAmount は1行の金額・税額の上限 (1000兆円) です。これを超える計算結果は 0 として扱い、
// 最大行数の伝票でも合計が int64 に収まるようにします。
var MaxAmount = decimal.New(1, 15)

var separatorReplacer = strings.NewReplacer(",", "", "_", "", " ", "")

// ParseNumber は画面から入力された数値文字列を decimal に変換します。
// 全角数字は半角に畳み込みます。解釈できない入力はエラーにせず 0 を返します。
func ParseNumber(raw string) decimal.Decimal {
	s := separatorReplacer.Replace(strings.TrimSpace(width.Fold.String(raw)))
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ParseQuantity は ParseNumber と同じですが、負の値は 0 とします。
func ParseQuantity(raw string) decimal.Decimal {
	return nonNegative(ParseNumber(raw))
}

// Round は 0.5 を 0 から遠い方へ丸めて整数にします（通常の四捨五入）。
// 絶対値が MaxAmount を超える場合は入力ミスとみなして 0 を返します。
func Round(d decimal.Decimal) int64 {
	r := d.Round(0)
	if r.Abs().GreaterThan(MaxAmount) {
		return 0
	}
	return r.IntPart()
}

func nonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}
