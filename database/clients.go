package database

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"

	"yamato/model"
)

var ErrDuplicateClient = errors.New("client name already exists")

// UpsertClientInTx は得意先マスタにデータを挿入または置換します。
// client_code が競合した場合は名称と卸コードを更新します。
func UpsertClientInTx(tx *sqlx.Tx, code, name, vendorCode string) error {
	const q = `
		INSERT INTO client_master (client_code, client_name, vendor_code)
		VALUES (?, ?, ?)
		ON CONFLICT(client_code) DO UPDATE SET
			client_name = excluded.client_name,
			vendor_code = excluded.vendor_code
	`
	if _, err := tx.Exec(q, code, name, vendorCode); err != nil {
		return fmt.Errorf("UpsertClientInTx (Code: %s, Name: %s) failed: %w", code, name, err)
	}
	return nil
}

func CreateClientInTx(tx *sqlx.Tx, code, name, vendorCode string) error {
	const q = `INSERT INTO client_master (client_code, client_name, vendor_code) VALUES (?, ?, ?)`
	if _, err := tx.Exec(q, code, name, vendorCode); err != nil {
		return fmt.Errorf("CreateClientInTx failed: %w", err)
	}
	return nil
}

func CheckClientExistsByName(tx *sqlx.Tx, name string) (bool, error) {
	var exists int
	err := tx.Get(&exists, `SELECT 1 FROM client_master WHERE client_name = ? LIMIT 1`, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("CheckClientExistsByName failed: %w", err)
	}
	return true, nil
}

func GetAllClients(db DBTX) ([]model.Client, error) {
	clients := []model.Client{}
	err := db.Select(&clients, "SELECT client_code, client_name, vendor_code FROM client_master ORDER BY client_code")
	if err != nil {
		return nil, fmt.Errorf("failed to get all clients: %w", err)
	}
	return clients, nil
}

// RegisterClient は新しい得意先を CL 連番で登録します。
// 同名の得意先がある場合は ErrDuplicateClient を返します。
func RegisterClient(db *sqlx.DB, in model.ClientInput) (model.Client, error) {
	name := strings.TrimSpace(in.Name)
	vendor := strings.TrimSpace(in.VendorCode)

	tx, err := db.Beginx()
	if err != nil {
		return model.Client{}, fmt.Errorf("RegisterClient: begin: %w", err)
	}
	defer tx.Rollback()

	exists, err := CheckClientExistsByName(tx, name)
	if err != nil {
		return model.Client{}, err
	}
	if exists {
		return model.Client{}, fmt.Errorf("%w: %s", ErrDuplicateClient, name)
	}

	code, err := NextSequenceInTx(tx, "CL", "CL", 4)
	if err != nil {
		return model.Client{}, err
	}
	if err := CreateClientInTx(tx, code, name, vendor); err != nil {
		return model.Client{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Client{}, fmt.Errorf("RegisterClient: commit: %w", err)
	}
	return model.Client{ClientCode: code, ClientName: name, VendorCode: vendor}, nil
}
