package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
)

func NextSequenceInTx(tx *sqlx.Tx, name, prefix string, padding int) (string, error) {
	var lastNo int
	err := tx.Get(&lastNo, "SELECT last_no FROM code_sequences WHERE name = ?", name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", fmt.Errorf("sequence '%s' not found", name)
		}
		return "", fmt.Errorf("failed to get sequence '%s': %w", name, err)
	}

	newNo := lastNo + 1
	if _, err := tx.Exec(`UPDATE code_sequences SET last_no = ? WHERE name = ?`, newNo, name); err != nil {
		return "", fmt.Errorf("failed to update sequence '%s': %w", name, err)
	}

	return fmt.Sprintf("%s%0*d", prefix, padding, newNo), nil
}

// InitializeSequenceFromMaxClientCode は CL 連番を既存の最大得意先コードに合わせます。
func InitializeSequenceFromMaxClientCode(tx *sqlx.Tx) error {
	var maxCode sql.NullString
	err := tx.Get(&maxCode, "SELECT client_code FROM client_master WHERE client_code LIKE 'CL%' ORDER BY client_code DESC LIMIT 1")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	maxNum := 0
	if maxCode.Valid {
		maxNum, _ = strconv.Atoi(strings.TrimPrefix(maxCode.String, "CL"))
	}

	log.Info().Int("last_no", maxNum).Msg("[Sequence] Setting 'CL' last_no")
	_, err = tx.Exec(`UPDATE code_sequences SET last_no = ? WHERE name = 'CL'`, maxNum)
	return err
}

// slipPrefix は伝票番号の接頭辞 "IO" + YYMMDD です。
func slipPrefix(date string) string {
	return "IO" + date[2:8]
}

// NextSlipNumberInTx は date (YYYYMMDD) の次の伝票番号 IOYYMMDDnnnnn を発行します。
// 発行した連番は code_sequences (name = IOYYMMDD) に記録するので、コミット後は同じ番号を二度返しません。
// 既存明細の最大番号より小さい番号も返しません。
func NextSlipNumberInTx(tx *sqlx.Tx, date string) (string, error) {
	if len(date) != 8 {
		return "", fmt.Errorf("NextSlipNumberInTx: invalid date %q", date)
	}
	prefix := slipPrefix(date)

	var last string
	err := tx.Get(&last, `SELECT slip_number FROM inout_records
		WHERE slip_number LIKE ? ORDER BY slip_number DESC LIMIT 1`, prefix+"%")
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("NextSlipNumberInTx failed: %w", err)
	}
	lastSeq := 0
	if len(last) == 13 { // IO + 6 + 5
		lastSeq, _ = strconv.Atoi(last[8:])
	}

	var reserved int
	err = tx.Get(&reserved, `SELECT last_no FROM code_sequences WHERE name = ?`, prefix)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("NextSlipNumberInTx failed: %w", err)
	}

	next := max(lastSeq, reserved) + 1
	if _, err := tx.Exec(`INSERT OR REPLACE INTO code_sequences (name, last_no) VALUES (?, ?)`, prefix, next); err != nil {
		return "", fmt.Errorf("NextSlipNumberInTx: reserve %s: %w", prefix, err)
	}
	return fmt.Sprintf("%s%05d", prefix, next), nil
}
