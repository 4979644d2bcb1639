package model

// Client は得意先（仕入先・払出先）を表します。VendorCode は卸コードです。
type Client struct {
	ClientCode string `db:"client_code" json:"clientCode"`
	ClientName string `db:"client_name" json:"name"`
	VendorCode string `db:"vendor_code" json:"vendorCode"`
}

// ClientInput は得意先登録リクエストです。
type ClientInput struct {
	Name       string `json:"name" validate:"required"`
	VendorCode string `json:"vendorCode"`
}
