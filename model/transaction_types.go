package model

// 入出庫区分
const (
	FlagInbound  = 11 // 入庫
	FlagOutbound = 12 // 出庫
)

// DrugCandidate は品目検索 (/api/inout/search) の1件です。
// 数値項目はマスタやJSONの欠損・文字列混入に備えて Lenient 型で受けます。
type DrugCandidate struct {
	YjCode               string       `db:"yj_code" json:"yjCode"`
	JanCode              string       `db:"jan_code" json:"janCode"`
	Name                 string       `db:"name" json:"name"`
	Spec                 string       `db:"spec" json:"spec"`
	UnitPrice            LenientFloat `db:"unit_price" json:"unitPrice"`
	PackTotal            LenientFloat `db:"pack_total" json:"packTotal"`
	Coefficient          LenientFloat `db:"coefficient" json:"coefficient"`
	PackQuantityNumber   LenientFloat `db:"pack_quantity_number" json:"packQuantityNumber"`
	PackQuantityUnitCode LenientInt   `db:"pack_quantity_unit_code" json:"packQuantityUnitCode"`
	UnitName             string       `db:"unit_name" json:"unitName"`
}

// InOutRecord は入出庫伝票の明細1行（保存ペイロード）です。
// SlipNumber が空の明細は保存時にサーバーが日付ごとに採番します。
type InOutRecord struct {
	JanCode         string  `db:"jan_code" json:"janCode" validate:"required"`
	YjCode          string  `db:"yj_code" json:"yjCode"`
	ProductName     string  `db:"product_name" json:"productName"`
	TransactionDate string  `db:"transaction_date" json:"transactionDate" validate:"required,len=8,numeric"`
	TransactionType int     `db:"transaction_type" json:"transactionType" validate:"oneof=11 12"`
	JanQuantity     float64 `db:"jan_quantity" json:"janQuantity" validate:"gt=0"`
	UnitCode        string  `db:"unit_code" json:"unitCode"`
	UnitName        string  `db:"unit_name" json:"unitName"`
	Quantity        float64 `db:"quantity" json:"quantity" validate:"gte=0"`
	Packaging       string  `db:"packaging" json:"packaging"`
	UnitPrice       float64 `db:"unit_price" json:"unitPrice"`
	Subtotal        int64   `db:"subtotal" json:"subtotal"`
	TaxAmount       int64   `db:"tax_amount" json:"taxAmount"`
	ExpiryDate      string  `db:"expiry_date" json:"expiryDate"`
	LotNumber       string  `db:"lot_number" json:"lotNumber"`
	VendorCode      string  `db:"vendor_code" json:"vendorCode"`
	SlipNumber      string  `db:"slip_number" json:"slipNumber"`
	LineNumber      int     `db:"line_number" json:"lineNumber" validate:"gte=1"`
}
