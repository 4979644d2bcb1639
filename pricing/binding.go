package pricing

import (
	"strconv"

	"github.com/shopspring/decimal"

	"yamato/model"
)

// UnitLabeler は単位コードを表示名に解決します。
type UnitLabeler interface {
	Label(code string) (string, bool)
}

// PackagingSpec は明細行に紐付けられた包装の定数です。
// 生成後は変更しません。別の品目を選び直した場合は新しい PackagingSpec に丸ごと置き換えます。
type PackagingSpec struct {
	yjCode   string
	janCode  string
	name     string
	spec     string
	unitName string

	baseUnitPrice        decimal.Decimal
	packQuantityNumber   decimal.Decimal
	packQuantityUnitCode int

	unitLabel string
	display   string
}

// Bind は検索結果の1件から PackagingSpec を作ります。
// 基準単価 = 原単位薬価 / (包装総量 / 包装薬価係数) はここで一度だけ計算されます。
func Bind(c model.DrugCandidate, labels UnitLabeler) *PackagingSpec {
	p := &PackagingSpec{
		yjCode:               c.YjCode,
		janCode:              c.JanCode,
		name:                 c.Name,
		spec:                 c.Spec,
		unitName:             c.UnitName,
		baseUnitPrice:        baseUnitPrice(c),
		packQuantityNumber:   nonNegative(decimal.NewFromFloat(float64(c.PackQuantityNumber))),
		packQuantityUnitCode: int(c.PackQuantityUnitCode),
	}

	p.unitLabel = c.UnitName
	suffix := ""
	if p.packQuantityUnitCode != 0 {
		label := c.UnitName
		if labels != nil {
			if mapped, ok := labels.Label(strconv.Itoa(p.packQuantityUnitCode)); ok && mapped != "" {
				label = mapped
			}
		}
		p.unitLabel = label
		suffix = "/" + label
	}
	p.display = p.packQuantityNumber.String() + c.UnitName + suffix
	return p
}

func baseUnitPrice(c model.DrugCandidate) decimal.Decimal {
	unitPrice := decimal.NewFromFloat(float64(c.UnitPrice))
	packTotal := decimal.NewFromFloat(float64(c.PackTotal))
	coef := decimal.NewFromFloat(float64(c.Coefficient))
	if packTotal.IsZero() || coef.IsZero() {
		return decimal.Zero
	}
	perCoef := packTotal.Div(coef)
	if perCoef.IsZero() {
		return decimal.Zero
	}
	return unitPrice.Div(perCoef)
}

func (p *PackagingSpec) YjCode() string                      { return p.yjCode }
func (p *PackagingSpec) JanCode() string                     { return p.janCode }
func (p *PackagingSpec) Name() string                        { return p.name }
func (p *PackagingSpec) Spec() string                        { return p.spec }
func (p *PackagingSpec) UnitName() string                    { return p.unitName }
func (p *PackagingSpec) BaseUnitPrice() decimal.Decimal      { return p.baseUnitPrice }
func (p *PackagingSpec) PackQuantityNumber() decimal.Decimal { return p.packQuantityNumber }
func (p *PackagingSpec) PackQuantityUnitCode() int           { return p.packQuantityUnitCode }

// UnitLabel は包装単位の表示名です。単位コード 0 の場合は UnitName と同じです。
func (p *PackagingSpec) UnitLabel() string { return p.unitLabel }

// UnitCode は保存時に送る単位コードです。コード 0（包装単位なし）は空文字になります。
func (p *PackagingSpec) UnitCode() string {
	if p.packQuantityUnitCode == 0 {
		return ""
	}
	return strconv.Itoa(p.packQuantityUnitCode)
}

// Display は "{包装数量}{単位名}/{包装単位}" 形式の包装表示です。
func (p *PackagingSpec) Display() string { return p.display }
