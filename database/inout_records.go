package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"

	"yamato/model"
)

const inOutColumns = `
	slip_number, line_number, transaction_date, transaction_type,
	jan_code, yj_code, product_name, jan_quantity, unit_code, unit_name,
	quantity, packaging, unit_price, subtotal, tax_amount,
	expiry_date, lot_number, vendor_code`

const insertInOutQuery = `
INSERT OR REPLACE INTO inout_records (` + inOutColumns + `
) VALUES (
	:slip_number, :line_number, :transaction_date, :transaction_type,
	:jan_code, :yj_code, :product_name, :jan_quantity, :unit_code, :unit_name,
	:quantity, :packaging, :unit_price, :subtotal, :tax_amount,
	:expiry_date, :lot_number, :vendor_code
)`

// PersistInOutRecordsInTx は明細を (伝票番号, 行番号) をキーに挿入または置換します。
func PersistInOutRecordsInTx(tx *sqlx.Tx, records []model.InOutRecord) error {
	for _, rec := range records {
		if _, err := tx.NamedExec(insertInOutQuery, rec); err != nil {
			return fmt.Errorf("failed to persist inout record (slip %s line %d): %w", rec.SlipNumber, rec.LineNumber, err)
		}
	}
	return nil
}

// GetSlipNumbersByDate は指定日の伝票番号を返します。vendorCode が空なら全卸が対象です。
func GetSlipNumbersByDate(db DBTX, date, vendorCode string) ([]string, error) {
	q := `SELECT DISTINCT slip_number FROM inout_records WHERE transaction_date = ?`
	args := []interface{}{date}
	if vendorCode != "" {
		q += ` AND vendor_code = ?`
		args = append(args, vendorCode)
	}
	q += ` ORDER BY slip_number`

	numbers := []string{}
	if err := db.Select(&numbers, q, args...); err != nil {
		return nil, fmt.Errorf("GetSlipNumbersByDate failed: %w", err)
	}
	return numbers, nil
}

func GetInOutRecordsBySlip(db DBTX, slipNumber string) ([]model.InOutRecord, error) {
	records := []model.InOutRecord{}
	q := `SELECT ` + inOutColumns + ` FROM inout_records WHERE slip_number = ? ORDER BY line_number`
	if err := db.Select(&records, q, slipNumber); err != nil {
		return nil, fmt.Errorf("GetInOutRecordsBySlip failed for %s: %w", slipNumber, err)
	}
	return records, nil
}

// DeleteSlipInTx は伝票の全明細を削除し、削除件数を返します。
func DeleteSlipInTx(tx *sqlx.Tx, slipNumber string) (int64, error) {
	res, err := tx.Exec(`DELETE FROM inout_records WHERE slip_number = ?`, slipNumber)
	if err != nil {
		return 0, fmt.Errorf("DeleteSlipInTx failed for %s: %w", slipNumber, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SaveInOutSlipsInTx は明細を伝票単位で保存し、保存した伝票番号を出現順に返します。
// 伝票番号が空の明細には日付ごとに新しい番号を振り、records に書き戻します。
// 既存の伝票は全行を入れ替えるので、行数を減らして再保存しても古い行は残りません。
func SaveInOutSlipsInTx(tx *sqlx.Tx, records []model.InOutRecord) ([]string, error) {
	issued := map[string]string{}
	seen := map[string]bool{}
	slips := []string{}
	for i := range records {
		rec := &records[i]
		if rec.SlipNumber == "" {
			number, ok := issued[rec.TransactionDate]
			if !ok {
				var err error
				if number, err = NextSlipNumberInTx(tx, rec.TransactionDate); err != nil {
					return nil, err
				}
				issued[rec.TransactionDate] = number
			}
			rec.SlipNumber = number
		}
		if seen[rec.SlipNumber] {
			continue
		}
		seen[rec.SlipNumber] = true
		slips = append(slips, rec.SlipNumber)
		if _, err := DeleteSlipInTx(tx, rec.SlipNumber); err != nil {
			return nil, err
		}
	}
	if err := PersistInOutRecordsInTx(tx, records); err != nil {
		return nil, err
	}
	return slips, nil
}
