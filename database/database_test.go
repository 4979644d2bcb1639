package database

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yamato/model"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, ApplySchema(db))
	return db
}

// insertMaster は列番号と値の組でマスタ行を挿入します。
func insertMaster(t *testing.T, db *sqlx.DB, table MasterTable, values map[int]interface{}) {
	t.Helper()
	cols := make([]string, 0, len(values))
	args := make([]interface{}, 0, len(values))
	for i, v := range values {
		cols = append(cols, table.ColumnName(i))
		args = append(args, v)
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table.Name, strings.Join(cols, ","),
		strings.TrimSuffix(strings.Repeat("?,", len(cols)), ","))
	_, err := db.Exec(q, args...)
	require.NoError(t, err)
}

func seedDrugs(t *testing.T, db *sqlx.DB) {
	insertMaster(t, db, JcshmsTable, map[int]interface{}{
		0: "4987123456789", 9: "1149019F1ZZZ", 18: "ロキソニン錠60mg", 20: "60mg",
		22: "ﾛｷｿﾆﾝ", 39: "錠", 44: 100.0, 48: "10", 49: 10.1,
	})
	insertMaster(t, db, JancodeTable, map[int]interface{}{
		1: "4987123456789", 6: 10.0, 7: "50",
	})
	// JANCODE に無い品目、係数が空
	insertMaster(t, db, JcshmsTable, map[int]interface{}{
		0: "4900000000001", 9: "2171014F1ZZZ", 18: "アムロジピン錠5mg", 20: "5mg",
		22: "ｱﾑﾛｼﾞﾋﾟﾝ", 39: "錠", 44: 500.0, 48: "", 49: 15.2,
	})
}

func TestApplySchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, ApplySchema(db))

	var lastNo int
	require.NoError(t, db.Get(&lastNo, `SELECT last_no FROM code_sequences WHERE name = 'CL'`))
	assert.Equal(t, 0, lastNo)
}

func TestMasterTableColumns(t *testing.T) {
	assert.Equal(t, "JC000", JcshmsTable.ColumnName(0))
	assert.Equal(t, "JA029", JancodeTable.ColumnName(29))
	stmt := JcshmsTable.createStatement()
	assert.Contains(t, stmt, "JC000 TEXT PRIMARY KEY")
	assert.Contains(t, stmt, "JC044 REAL")
	assert.Contains(t, stmt, "JC061 INTEGER")
	assert.Contains(t, stmt, "JC124 REAL")
}

func TestSearchDrugCandidates(t *testing.T) {
	db := newTestDB(t)
	seedDrugs(t, db)

	got, err := SearchDrugCandidates(db, "ロキソニン", "", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, "4987123456789", c.JanCode)
	assert.Equal(t, "1149019F1ZZZ", c.YjCode)
	assert.Equal(t, "60mg", c.Spec)
	assert.Equal(t, model.LenientFloat(10.1), c.UnitPrice)
	assert.Equal(t, model.LenientFloat(100), c.PackTotal)
	assert.Equal(t, model.LenientFloat(10), c.Coefficient)
	assert.Equal(t, model.LenientFloat(10), c.PackQuantityNumber)
	assert.Equal(t, model.LenientInt(50), c.PackQuantityUnitCode)
	assert.Equal(t, "錠", c.UnitName)

	// カナ名でも一致する
	got, err = SearchDrugCandidates(db, "ｱﾑﾛ", "5mg", "")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Zero(t, got[0].PackQuantityNumber)
	assert.Zero(t, got[0].PackQuantityUnitCode)
	assert.Zero(t, got[0].Coefficient)

	got, err = SearchDrugCandidates(db, "", "", "4900000000001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "アムロジピン錠5mg", got[0].Name)

	got, err = SearchDrugCandidates(db, "存在しない", "", "")
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)
}

func TestGetDrugCandidateByJan(t *testing.T) {
	db := newTestDB(t)
	seedDrugs(t, db)

	c, err := GetDrugCandidateByJan(db, "4987123456789")
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "ロキソニン錠60mg", c.Name)

	c, err = GetDrugCandidateByJan(db, "0000000000000")
	require.NoError(t, err)
	assert.Nil(t, c)
}

func TestRegisterClient(t *testing.T) {
	db := newTestDB(t)

	c1, err := RegisterClient(db, model.ClientInput{Name: " 大和卸 ", VendorCode: "123456789"})
	require.NoError(t, err)
	assert.Equal(t, model.Client{ClientCode: "CL0001", ClientName: "大和卸", VendorCode: "123456789"}, c1)

	c2, err := RegisterClient(db, model.ClientInput{Name: "東邦"})
	require.NoError(t, err)
	assert.Equal(t, "CL0002", c2.ClientCode)

	_, err = RegisterClient(db, model.ClientInput{Name: "大和卸"})
	assert.ErrorIs(t, err, ErrDuplicateClient)

	clients, err := GetAllClients(db)
	require.NoError(t, err)
	require.Len(t, clients, 2)
	assert.Equal(t, "大和卸", clients[0].ClientName)
}

func TestUpsertClientAndSequenceInit(t *testing.T) {
	db := newTestDB(t)

	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, UpsertClientInTx(tx, "CL0007", "旧名", ""))
	require.NoError(t, UpsertClientInTx(tx, "CL0007", "新名", "987654321"))
	require.NoError(t, InitializeSequenceFromMaxClientCode(tx))
	next, err := NextSequenceInTx(tx, "CL", "CL", 4)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, "CL0008", next)
	clients, err := GetAllClients(db)
	require.NoError(t, err)
	require.Len(t, clients, 1)
	assert.Equal(t, "新名", clients[0].ClientName)
	assert.Equal(t, "987654321", clients[0].VendorCode)
}

func TestNextSequenceUnknownName(t *testing.T) {
	db := newTestDB(t)
	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = NextSequenceInTx(tx, "NOPE", "NP", 3)
	assert.Error(t, err)
}

func sampleRecord(slip string, line int) model.InOutRecord {
	return model.InOutRecord{
		JanCode:         "4987123456789",
		ProductName:     "ロキソニン錠60mg",
		TransactionDate: "20261019",
		TransactionType: model.FlagInbound,
		JanQuantity:     3,
		UnitCode:        "50",
		UnitName:        "箱",
		Quantity:        30,
		Packaging:       "10錠/箱",
		UnitPrice:       1.01,
		Subtotal:        30,
		TaxAmount:       3,
		VendorCode:      "123456789",
		SlipNumber:      slip,
		LineNumber:      line,
	}
}

func TestInOutRecordsLifecycle(t *testing.T) {
	db := newTestDB(t)

	tx, err := db.Beginx()
	require.NoError(t, err)
	slip, err := NextSlipNumberInTx(tx, "20261019")
	require.NoError(t, err)
	assert.Equal(t, "IO26101900001", slip)

	recs := []model.InOutRecord{sampleRecord(slip, 2), sampleRecord(slip, 1)}
	require.NoError(t, PersistInOutRecordsInTx(tx, recs))
	require.NoError(t, tx.Commit())

	// 同じ (伝票番号, 行番号) は置き換え
	tx, err = db.Beginx()
	require.NoError(t, err)
	replaced := sampleRecord(slip, 1)
	replaced.JanQuantity = 5
	require.NoError(t, PersistInOutRecordsInTx(tx, []model.InOutRecord{replaced}))
	next, err := NextSlipNumberInTx(tx, "20261019")
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, "IO26101900002", next)

	got, err := GetInOutRecordsBySlip(db, slip)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 1, got[0].LineNumber)
	assert.Equal(t, 5.0, got[0].JanQuantity)
	assert.Equal(t, sampleRecord(slip, 2), got[1])

	numbers, err := GetSlipNumbersByDate(db, "20261019", "")
	require.NoError(t, err)
	assert.Equal(t, []string{slip}, numbers)
	numbers, err = GetSlipNumbersByDate(db, "20261019", "000000000")
	require.NoError(t, err)
	assert.Empty(t, numbers)

	tx, err = db.Beginx()
	require.NoError(t, err)
	n, err := DeleteSlipInTx(tx, slip)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())
	assert.Equal(t, int64(2), n)

	got, err = GetInOutRecordsBySlip(db, slip)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestNextSlipNumberRejectsBadDate(t *testing.T) {
	db := newTestDB(t)
	tx, err := db.Beginx()
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = NextSlipNumberInTx(tx, "2026-10")
	assert.Error(t, err)
}

func TestNextSlipNumberReservesAcrossTransactions(t *testing.T) {
	db := newTestDB(t)

	issue := func() string {
		tx, err := db.Beginx()
		require.NoError(t, err)
		n, err := NextSlipNumberInTx(tx, "20261019")
		require.NoError(t, err)
		require.NoError(t, tx.Commit())
		return n
	}
	assert.Equal(t, "IO26101900001", issue())
	assert.Equal(t, "IO26101900002", issue())

	// 手入力の番号で保存された明細より後ろから発行する
	tx, err := db.Beginx()
	require.NoError(t, err)
	require.NoError(t, PersistInOutRecordsInTx(tx, []model.InOutRecord{sampleRecord("IO26101900010", 1)}))
	require.NoError(t, tx.Commit())
	assert.Equal(t, "IO26101900011", issue())

	// ロールバックした発行は予約されない
	tx, err = db.Beginx()
	require.NoError(t, err)
	_, err = NextSlipNumberInTx(tx, "20261019")
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())
	assert.Equal(t, "IO26101900012", issue())
}

func TestSaveInOutSlipsInTx(t *testing.T) {
	db := newTestDB(t)

	tx, err := db.Beginx()
	require.NoError(t, err)
	old := []model.InOutRecord{sampleRecord("IO26101900001", 1), sampleRecord("IO26101900001", 2)}
	require.NoError(t, PersistInOutRecordsInTx(tx, old))
	require.NoError(t, tx.Commit())

	recs := []model.InOutRecord{
		sampleRecord("", 1),
		sampleRecord("IO26101900001", 1),
		sampleRecord("", 2),
	}
	tx, err = db.Beginx()
	require.NoError(t, err)
	slips, err := SaveInOutSlipsInTx(tx, recs)
	require.NoError(t, err)
	require.NoError(t, tx.Commit())

	assert.Equal(t, []string{"IO26101900002", "IO26101900001"}, slips)
	assert.Equal(t, "IO26101900002", recs[2].SlipNumber)

	got, err := GetInOutRecordsBySlip(db, "IO26101900001")
	require.NoError(t, err)
	assert.Len(t, got, 1)
	got, err = GetInOutRecordsBySlip(db, "IO26101900002")
	require.NoError(t, err)
	assert.Len(t, got, 2)
}
