package database

import (
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
)

// MasterTable は JCSHMS / JANCODE のような列番号だけで定義されたマスタ表です。
// 列名は Prefix + 3桁の列番号 (JC000, JA001 ...) になります。
type MasterTable struct {
	Name       string
	Prefix     string
	Columns    int
	PrimaryKey int
	// ColumnTypes は列番号ごとの型 ("real" / "integer")。未指定の列は TEXT です。
	ColumnTypes map[int]string
}

var (
	JcshmsTable = MasterTable{
		Name: "jcshms", Prefix: "JC", Columns: 125, PrimaryKey: 0,
		ColumnTypes: map[int]string{
			44:  "real",    // 包装総量数値
			49:  "real",    // 現単位薬価
			50:  "real",
			61:  "integer",
			62:  "integer",
			63:  "integer",
			64:  "integer",
			65:  "integer",
			66:  "integer",
			124: "real",
		},
	}
	JancodeTable = MasterTable{
		Name: "jancode", Prefix: "JA", Columns: 30, PrimaryKey: 1,
		ColumnTypes: map[int]string{
			6: "real", // 包装数量数値
			8: "real",
		},
	}
)

func (t MasterTable) ColumnName(i int) string {
	return fmt.Sprintf("%s%03d", t.Prefix, i)
}

func (t MasterTable) createStatement() string {
	cols := make([]string, t.Columns)
	for i := 0; i < t.Columns; i++ {
		typ := "TEXT"
		switch t.ColumnTypes[i] {
		case "real":
			typ = "REAL"
		case "integer":
			typ = "INTEGER"
		}
		col := t.ColumnName(i) + " " + typ
		if i == t.PrimaryKey {
			col += " PRIMARY KEY"
		}
		cols[i] = col
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n\t%s\n)", t.Name, strings.Join(cols, ",\n\t"))
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS code_sequences (
		name    TEXT PRIMARY KEY,
		last_no INTEGER NOT NULL DEFAULT 0
	)`,
	`INSERT OR IGNORE INTO code_sequences (name, last_no) VALUES ('CL', 0)`,
	`CREATE TABLE IF NOT EXISTS client_master (
		client_code TEXT PRIMARY KEY,
		client_name TEXT NOT NULL UNIQUE,
		vendor_code TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS inout_records (
		slip_number      TEXT NOT NULL,
		line_number      INTEGER NOT NULL,
		transaction_date TEXT NOT NULL,
		transaction_type INTEGER NOT NULL,
		jan_code         TEXT NOT NULL,
		yj_code          TEXT NOT NULL DEFAULT '',
		product_name     TEXT NOT NULL DEFAULT '',
		jan_quantity     REAL NOT NULL DEFAULT 0,
		unit_code        TEXT NOT NULL DEFAULT '',
		unit_name        TEXT NOT NULL DEFAULT '',
		quantity         REAL NOT NULL DEFAULT 0,
		packaging        TEXT NOT NULL DEFAULT '',
		unit_price       REAL NOT NULL DEFAULT 0,
		subtotal         INTEGER NOT NULL DEFAULT 0,
		tax_amount       INTEGER NOT NULL DEFAULT 0,
		expiry_date      TEXT NOT NULL DEFAULT '',
		lot_number       TEXT NOT NULL DEFAULT '',
		vendor_code      TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (slip_number, line_number)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_inout_records_date ON inout_records (transaction_date)`,
	JcshmsTable.createStatement(),
	JancodeTable.createStatement(),
	`CREATE INDEX IF NOT EXISTS idx_jcshms_name ON jcshms (JC018)`,
}

// ApplySchema はテーブルが無ければ作成します。何度実行しても同じ結果になります。
func ApplySchema(db *sqlx.DB) error {
	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("ApplySchema failed: %w", err)
		}
	}
	return nil
}
