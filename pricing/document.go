package pricing

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// DefaultCapacity は伝票の既定行数です。
const DefaultCapacity = 10

var ErrLineOutOfRange = errors.New("line number out of range")

// LineState は明細行の状態です。
type LineState int

const (
	LineEmpty      LineState = iota // 品目未選択
	LineBound                       // 品目選択済み、数量なし
	LineQuantified                  // 品目選択済み、数量あり（保存対象）
)

func (s LineState) String() string {
	switch s {
	case LineBound:
		return "bound"
	case LineQuantified:
		return "quantified"
	default:
		return "empty"
	}
}

// Line は伝票の1行です。Number は 1 始まりで、伝票の生存中は変わりません。
// Result は再計算のたびに上書きされます。
type Line struct {
	Number     int
	Packaging  *PackagingSpec
	Quantity   decimal.Decimal
	ExpiryDate string
	LotNumber  string
	Result     LineResult
}

func (l Line) State() LineState {
	if l.Packaging == nil {
		return LineEmpty
	}
	if !l.Quantity.IsPositive() {
		return LineBound
	}
	return LineQuantified
}

// Totals は伝票合計です。
type Totals struct {
	Subtotal   int64 `json:"subtotal"`
	TotalTax   int64 `json:"totalTax"`
	GrandTotal int64 `json:"grandTotal"`
}

// Document は入出庫伝票の入力状態です。行数は作成時に固定されます。
// 数量・税率・品目の変更はすべて同期的に全行の再計算を行い、
// 合計は毎回ゼロから積み上げ直します。
//
// Document は単一のイベントループから操作される前提で、並行利用には対応しません。
type Document struct {
	lines     []Line
	taxRate   decimal.Decimal
	totals    Totals
	observers []func(Totals)
}

// NewDocument は capacity 行の空伝票を作ります。capacity <= 0 なら DefaultCapacity です。
func NewDocument(capacity int) *Document {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	d := &Document{lines: make([]Line, capacity)}
	for i := range d.lines {
		d.lines[i] = Line{Number: i + 1}
	}
	return d
}

func (d *Document) Capacity() int { return len(d.lines) }

func (d *Document) TaxRate() decimal.Decimal { return d.taxRate }

func (d *Document) Totals() Totals { return d.totals }

// Lines は全行のコピーを返します。
func (d *Document) Lines() []Line {
	out := make([]Line, len(d.lines))
	copy(out, d.lines)
	return out
}

func (d *Document) Line(n int) (Line, error) {
	l, err := d.line(n)
	if err != nil {
		return Line{}, err
	}
	return *l, nil
}

func (d *Document) line(n int) (*Line, error) {
	if n < 1 || n > len(d.lines) {
		return nil, fmt.Errorf("%w: %d (1-%d)", ErrLineOutOfRange, n, len(d.lines))
	}
	return &d.lines[n-1], nil
}

// Subscribe は再計算のたびに同期的に呼ばれる関数を登録します。
func (d *Document) Subscribe(fn func(Totals)) {
	if fn != nil {
		d.observers = append(d.observers, fn)
	}
}

// SetTaxRate は画面入力の税率(%)を設定して再計算します。
func (d *Document) SetTaxRate(raw string) Totals {
	return d.SetTaxRateValue(ParseNumber(raw))
}

func (d *Document) SetTaxRateValue(rate decimal.Decimal) Totals {
	d.taxRate = nonNegative(rate)
	return d.Recompute()
}

// SetQuantity は n 行目の入力数量（包装数）を設定して再計算します。
func (d *Document) SetQuantity(n int, raw string) (Totals, error) {
	return d.SetQuantityValue(n, ParseQuantity(raw))
}

func (d *Document) SetQuantityValue(n int, qty decimal.Decimal) (Totals, error) {
	l, err := d.line(n)
	if err != nil {
		return d.totals, err
	}
	l.Quantity = nonNegative(qty)
	return d.Recompute(), nil
}

// Bind は n 行目の包装を p に置き換えて再計算します。以前の包装の値は一切残りません。
func (d *Document) Bind(n int, p *PackagingSpec) (Totals, error) {
	l, err := d.line(n)
	if err != nil {
		return d.totals, err
	}
	l.Packaging = p
	return d.Recompute(), nil
}

// SetExpiry と SetLot は計算に関係しないため再計算しません。
func (d *Document) SetExpiry(n int, v string) error {
	l, err := d.line(n)
	if err != nil {
		return err
	}
	l.ExpiryDate = v
	return nil
}

func (d *Document) SetLot(n int, v string) error {
	l, err := d.line(n)
	if err != nil {
		return err
	}
	l.LotNumber = v
	return nil
}

// ClearLine は n 行目を空行に戻して再計算します。
func (d *Document) ClearLine(n int) (Totals, error) {
	l, err := d.line(n)
	if err != nil {
		return d.totals, err
	}
	*l = Line{Number: n}
	return d.Recompute(), nil
}

// Reset は全行を空に戻して再計算します。税率はそのまま残します。
func (d *Document) Reset() Totals {
	for i := range d.lines {
		d.lines[i] = Line{Number: i + 1}
	}
	return d.Recompute()
}

// Recompute は全行を計算し直し、合計をゼロから積み上げます。
// 入力が同じなら何度呼んでも同じ結果になります。
func (d *Document) Recompute() Totals {
	var t Totals
	for i := range d.lines {
		l := &d.lines[i]
		l.Result = PriceLine(l.Packaging, l.Quantity, d.taxRate)
		t.Subtotal += l.Result.NetAmount
		t.TotalTax += l.Result.TaxAmount
	}
	t.GrandTotal = t.Subtotal + t.TotalTax
	d.totals = t
	for _, fn := range d.observers {
		fn(t)
	}
	return t
}

// Eligible は保存対象（品目選択済みかつ数量あり）の行を行番号順に返します。
func (d *Document) Eligible() []Line {
	var out []Line
	for _, l := range d.lines {
		if l.State() == LineQuantified {
			out = append(out, l)
		}
	}
	return out
}
