package inout

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"yamato/model"
	"yamato/pricing"
	"yamato/units"
)

// Backend は入出庫画面が使う外部の窓口です。
type Backend interface {
	UnitMap(ctx context.Context) (map[string]string, error)
	SearchDrugs(ctx context.Context, name, spec string) ([]model.DrugCandidate, error)
	ListClients(ctx context.Context) ([]model.Client, error)
	RegisterClient(ctx context.Context, in model.ClientInput) (model.Client, error)
	Save(ctx context.Context, records []model.InOutRecord) (SaveResponse, error)
}

// Alert は利用者に見せるエラーです。Err に原因を保持します。
type Alert struct {
	Message string
	Err     error
}

func (a *Alert) Error() string {
	if a.Err != nil {
		return a.Message + ": " + a.Err.Error()
	}
	return a.Message
}

func (a *Alert) Unwrap() error { return a.Err }

func alert(msg string, err error) *Alert { return &Alert{Message: msg, Err: err} }

var ErrNoLookup = errors.New("no line is waiting for a drug selection")

// Form は入出庫伝票の入力画面です。伝票 (pricing.Document) を1つ持ち、
// 計算は全て同期的に伝票へ委ねます。外部呼び出しの結果は完了してから伝票へ反映します。
// 単一のイベントループから操作する前提で、ロックは持ちません。
type Form struct {
	backend  Backend
	capacity int
	taxRate  string
	logger   zerolog.Logger

	doc        *pricing.Document
	labels     units.Labels
	clients    []model.Client
	header     Header
	lookupLine int
	observers  []func(pricing.Totals)
}

type FormOption func(*Form)

func WithCapacity(n int) FormOption {
	return func(f *Form) { f.capacity = n }
}

// WithTaxRate は新しい伝票の初期税率 (%) です。
func WithTaxRate(rate string) FormOption {
	return func(f *Form) { f.taxRate = rate }
}

func WithLogger(l zerolog.Logger) FormOption {
	return func(f *Form) { f.logger = l }
}

func NewForm(backend Backend, opts ...FormOption) *Form {
	f := &Form{
		backend:  backend,
		capacity: pricing.DefaultCapacity,
		taxRate:  "10",
		logger:   log.Logger,
		labels:   units.Labels{},
		header:   Header{TransactionType: model.FlagInbound},
	}
	for _, opt := range opts {
		opt(f)
	}
	f.newDocument()
	return f
}

func (f *Form) newDocument() {
	f.doc = pricing.NewDocument(f.capacity)
	for _, fn := range f.observers {
		f.doc.Subscribe(fn)
	}
	f.doc.SetTaxRate(f.taxRate)
	f.lookupLine = 0
}

// Open は単位マップと得意先一覧を取得します。
// 単位マップの取得に失敗しても空のマップで続行し、入力は止めません。
// 失敗があれば *Alert を返しますが、フォームはそのまま使えます。
func (f *Form) Open(ctx context.Context) error {
	var msgs []string
	var errs []error

	m, err := f.backend.UnitMap(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("unit map fetch failed; falling back to raw unit names")
		f.labels = units.Labels{}
		msgs = append(msgs, "単位マスタを取得できませんでした")
		errs = append(errs, err)
	} else {
		f.labels = units.Labels(m)
	}

	clients, err := f.backend.ListClients(ctx)
	if err != nil {
		f.logger.Warn().Err(err).Msg("client list fetch failed")
		msgs = append(msgs, "得意先一覧を取得できませんでした")
		errs = append(errs, err)
	} else {
		f.clients = clients
	}

	if len(errs) > 0 {
		return alert(strings.Join(msgs, "。"), errors.Join(errs...))
	}
	return nil
}

func (f *Form) Document() *pricing.Document { return f.doc }

func (f *Form) Totals() pricing.Totals { return f.doc.Totals() }

// Subscribe は合計が再計算されるたびに呼ばれる関数を登録します。送信後の新しい伝票にも引き継ぎます。
func (f *Form) Subscribe(fn func(pricing.Totals)) {
	if fn == nil {
		return
	}
	f.observers = append(f.observers, fn)
	f.doc.Subscribe(fn)
}

// Search は品目を検索します。結果はキャッシュしません。
func (f *Form) Search(ctx context.Context, name, spec string) ([]model.DrugCandidate, error) {
	found, err := f.backend.SearchDrugs(ctx, name, spec)
	if err != nil {
		return nil, alert("品目検索に失敗しました", err)
	}
	return found, nil
}

// BeginLookup は検索結果を割り当てる行を覚えます。
func (f *Form) BeginLookup(line int) error {
	if _, err := f.doc.Line(line); err != nil {
		return err
	}
	f.lookupLine = line
	return nil
}

// LookupLine は選択待ちの行番号です (0 なら無し)。
func (f *Form) LookupLine() int { return f.lookupLine }

// Select は BeginLookup で指定した行に候補を割り当てて再計算します。
func (f *Form) Select(c model.DrugCandidate) (pricing.Totals, error) {
	if f.lookupLine == 0 {
		return f.doc.Totals(), ErrNoLookup
	}
	line := f.lookupLine
	f.lookupLine = 0
	return f.doc.Bind(line, pricing.Bind(c, f.labels))
}

func (f *Form) SetQuantity(line int, raw string) (pricing.Totals, error) {
	return f.doc.SetQuantity(line, raw)
}

func (f *Form) SetTaxRate(raw string) pricing.Totals {
	return f.doc.SetTaxRate(raw)
}

func (f *Form) SetExpiry(line int, v string) error { return f.doc.SetExpiry(line, v) }

func (f *Form) SetLot(line int, v string) error { return f.doc.SetLot(line, v) }

// Clear は1行を空に戻します。
func (f *Form) Clear(line int) (pricing.Totals, error) {
	if f.lookupLine == line {
		f.lookupLine = 0
	}
	return f.doc.ClearLine(line)
}

func (f *Form) SetHeader(h Header) { f.header = h }

func (f *Form) Header() Header { return f.header }

// Clients は取得済みの得意先一覧のコピーを返します。
func (f *Form) Clients() []model.Client {
	out := make([]model.Client, len(f.clients))
	copy(out, f.clients)
	return out
}

// RegisterClient は得意先を登録し、一覧に加えます。登録した得意先の卸コードをヘッダーに入れます。
func (f *Form) RegisterClient(ctx context.Context, name, vendorCode string) (model.Client, error) {
	in := model.ClientInput{Name: strings.TrimSpace(name), VendorCode: strings.TrimSpace(vendorCode)}
	if err := validate.Struct(in); err != nil {
		return model.Client{}, alert("得意先名を入力してください", err)
	}
	c, err := f.backend.RegisterClient(ctx, in)
	if err != nil {
		return model.Client{}, alert("得意先の登録に失敗しました", err)
	}
	f.clients = append(f.clients, c)
	f.header.VendorCode = c.VendorCode
	return c, nil
}

// Submit は伝票を保存します。成功すると伝票を破棄して新しい空の伝票にします。
// 失敗した場合は伝票をそのまま残すので、再送できます。
func (f *Form) Submit(ctx context.Context) (SaveResponse, error) {
	h := f.header.Normalize()
	if err := validate.Struct(h); err != nil {
		return SaveResponse{}, alert("伝票日付と伝票番号を入力してください", err)
	}

	records := BuildRecords(h, f.doc)
	if len(records) == 0 {
		return SaveResponse{}, alert("保存する明細がありません", nil)
	}

	resp, err := f.backend.Save(ctx, records)
	if err != nil {
		f.logger.Error().Err(err).Str("slip", h.SlipNumber).Msg("slip save failed")
		return SaveResponse{}, alert("保存に失敗しました", err)
	}

	f.logger.Info().Str("slip", h.SlipNumber).Int("lines", len(records)).Msg("slip saved")
	f.newDocument()
	f.header = Header{TransactionType: model.FlagInbound}
	return resp, nil
}

// String は伝票の状態を1行で表します (ログ用)。
func (f *Form) String() string {
	t := f.doc.Totals()
	return fmt.Sprintf("slip=%s lines=%d subtotal=%d tax=%d total=%d",
		f.header.SlipNumber, len(f.doc.Eligible()), t.Subtotal, t.TotalTax, t.GrandTotal)
}
