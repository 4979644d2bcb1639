package inout

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"

	"yamato/model"
	"yamato/pricing"
)

// Header は伝票ヘッダーです。Date と SlipNumber は区切り文字付きで入力されても構いません。
type Header struct {
	Date            string `json:"date" validate:"required,len=8,numeric"`
	SlipNumber      string `json:"slipNumber" validate:"required"`
	TransactionType int    `json:"transactionType" validate:"oneof=11 12"`
	VendorCode      string `json:"vendorCode"`
}

// Normalize は送信用に日付と伝票番号から区切り文字を取り除きます。
func (h Header) Normalize() Header {
	h.Date = CompactDate(h.Date)
	h.SlipNumber = CompactSlip(h.SlipNumber)
	h.VendorCode = strings.TrimSpace(width.Fold.String(h.VendorCode))
	return h
}

// CompactDate は全角を半角にしたうえで数字以外を取り除きます ("2026-10-19" → "20261019")。
func CompactDate(s string) string {
	s = width.Fold.String(s)
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CompactSlip は伝票番号から空白と区切り記号を取り除きます。
func CompactSlip(s string) string {
	s = width.Fold.String(s)
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || r == '-' || r == '/' || r == '.' || r == '_' {
			return -1
		}
		return r
	}, s)
}

// BuildRecords は保存対象の行 (品目選択済みかつ数量あり) だけを明細にします。
func BuildRecords(h Header, doc *pricing.Document) []model.InOutRecord {
	h = h.Normalize()
	eligible := doc.Eligible()
	out := make([]model.InOutRecord, 0, len(eligible))
	for _, l := range eligible {
		p := l.Packaging
		janQty, _ := l.Quantity.Float64()
		realQty, _ := l.Result.RealQuantity.Float64()
		unitPrice, _ := p.BaseUnitPrice().Float64()
		out = append(out, model.InOutRecord{
			JanCode:         p.JanCode(),
			YjCode:          p.YjCode(),
			ProductName:     p.Name(),
			TransactionDate: h.Date,
			TransactionType: h.TransactionType,
			JanQuantity:     janQty,
			UnitCode:        p.UnitCode(),
			UnitName:        p.UnitLabel(),
			Quantity:        realQty,
			Packaging:       p.Display(),
			UnitPrice:       unitPrice,
			Subtotal:        l.Result.NetAmount,
			TaxAmount:       l.Result.TaxAmount,
			ExpiryDate:      CompactDate(l.ExpiryDate),
			LotNumber:       strings.TrimSpace(l.LotNumber),
			VendorCode:      h.VendorCode,
			SlipNumber:      h.SlipNumber,
			LineNumber:      l.Number,
		})
	}
	return out
}
