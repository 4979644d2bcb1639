package pricing

import "github.com/shopspring/decimal"

// LineResult は明細1行の計算結果です。金額と税額は常に整数です。
type LineResult struct {
	RealQuantity decimal.Decimal
	NetAmount    int64
	TaxAmount    int64
}

// PriceLine は包装と入力数量（包装数）から実数量・金額・税額を計算します。
//
//	実数量 = 包装数量 × 入力数量
//	金額   = round(基準単価 × 実数量)
//	税額   = round(金額 × 税率 / 100)
//
// 包装が未選択、または数量が 0 以下の場合はすべて 0 です。副作用はありません。
func PriceLine(p *PackagingSpec, qty, taxRatePercent decimal.Decimal) LineResult {
	if p == nil || !qty.IsPositive() {
		return LineResult{RealQuantity: decimal.Zero}
	}
	realQty := p.packQuantityNumber.Mul(qty)
	net := Round(p.baseUnitPrice.Mul(realQty))
	tax := Round(decimal.NewFromInt(net).Mul(nonNegative(taxRatePercent)).Div(hundred))
	return LineResult{
		RealQuantity: realQty,
		NetAmount:    net,
		TaxAmount:    tax,
	}
}
