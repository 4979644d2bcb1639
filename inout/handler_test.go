package inout

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yamato/config"
	"yamato/database"
	"yamato/metrics"
	"yamato/model"
	"yamato/pricing"
	"yamato/units"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := sqlx.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, database.ApplySchema(db))
	return db
}

func newTestRouter(t *testing.T, db *sqlx.DB, m *metrics.Domain) http.Handler {
	t.Helper()
	store := units.NewStore()
	store.Replace(map[string]string{"50": "箱"})

	r := chi.NewRouter()
	r.Get("/api/inout/search", SearchHandler(db))
	r.Get("/api/inout/drug/{jan}", DrugByJanHandler(db))
	r.Post("/api/inout/save", SaveHandler(db, m))
	r.Post("/api/inout/calculate", CalculateHandler(store, m))
	r.Get("/api/inout/receipts", ReceiptsHandler(db))
	r.Get("/api/inout/next-slip", NextSlipNumberHandler(db))
	r.Get("/api/inout/slip/{number}", GetSlipHandler(db))
	r.Delete("/api/inout/slip/{number}", DeleteSlipHandler(db, m))
	return r
}

func do(t *testing.T, h http.Handler, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(method, target, &buf))
	return rr
}

func record(line int, qty float64) model.InOutRecord {
	return model.InOutRecord{
		JanCode:         "4987123456789",
		TransactionDate: "20261019",
		TransactionType: model.FlagOutbound,
		JanQuantity:     qty,
		Quantity:        qty * 10,
		UnitPrice:       10,
		Subtotal:        int64(qty * 100),
		SlipNumber:      "IO26101900001",
		LineNumber:      line,
	}
}

func TestSaveGetDeleteSlip(t *testing.T) {
	db := newTestDB(t)
	m := metrics.NewDomain(prometheus.NewRegistry())
	h := newTestRouter(t, db, m)

	empty := record(3, 0)
	noJan := record(4, 1)
	noJan.JanCode = ""
	rr := do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{record(1, 2), record(2, 1), empty, noJan})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp SaveResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Saved)
	assert.Equal(t, 2, resp.Skipped)
	assert.Equal(t, []string{"IO26101900001"}, resp.SlipNumbers)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinesSaved.WithLabelValues("12")))

	rr = do(t, h, http.MethodGet, "/api/inout/slip/IO26101900001", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.InOutRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, record(1, 2), got[0])

	rr = do(t, h, http.MethodGet, "/api/inout/receipts?date=2026-10-19", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `["IO26101900001"]`, rr.Body.String())

	rr = do(t, h, http.MethodGet, "/api/inout/next-slip?date=20261019", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"slipNumber":"IO26101900002"}`, rr.Body.String())

	rr = do(t, h, http.MethodDelete, "/api/inout/slip/IO26101900001", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	rr = do(t, h, http.MethodDelete, "/api/inout/slip/IO26101900001", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	rr = do(t, h, http.MethodGet, "/api/inout/slip/IO26101900001", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSaveRejectsInvalidRecords(t *testing.T) {
	db := newTestDB(t)
	h := newTestRouter(t, db, nil)

	bad := record(1, 1)
	bad.TransactionType = 99
	rr := do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{bad})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "TransactionType")

	noDate := record(1, 1)
	noDate.SlipNumber = ""
	noDate.TransactionDate = ""
	rr = do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{noDate})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "TransactionDate")

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/inout/save", bytes.NewBufferString("{")))
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	var count int
	require.NoError(t, db.Get(&count, `SELECT COUNT(*) FROM inout_records`))
	assert.Zero(t, count)
}

func TestNextSlipNumberIsNotReissued(t *testing.T) {
	db := newTestDB(t)
	h := newTestRouter(t, db, nil)

	rr := do(t, h, http.MethodGet, "/api/inout/next-slip?date=20261019", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"slipNumber":"IO26101900001"}`, rr.Body.String())
	rr = do(t, h, http.MethodGet, "/api/inout/next-slip?date=20261019", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"slipNumber":"IO26101900002"}`, rr.Body.String())

	// 別の日付は別の連番
	rr = do(t, h, http.MethodGet, "/api/inout/next-slip?date=20261020", nil)
	assert.JSONEq(t, `{"slipNumber":"IO26102000001"}`, rr.Body.String())
}

func TestSaveIssuesSlipNumberWhenEmpty(t *testing.T) {
	db := newTestDB(t)
	h := newTestRouter(t, db, nil)

	first := record(1, 1)
	first.SlipNumber = ""
	first.JanCode = "AAAA"
	second := record(1, 2)
	second.SlipNumber = ""
	second.JanCode = "BBBB"

	var numbers []string
	for _, rec := range []model.InOutRecord{first, second} {
		rr := do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{rec})
		require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
		var resp SaveResponse
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
		require.Len(t, resp.SlipNumbers, 1)
		numbers = append(numbers, resp.SlipNumbers[0])
	}
	assert.Equal(t, []string{"IO26101900001", "IO26101900002"}, numbers)

	for i, jan := range []string{"AAAA", "BBBB"} {
		got, err := database.GetInOutRecordsBySlip(db, numbers[i])
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, jan, got[0].JanCode)
	}
}

func TestResaveReplacesWholeSlip(t *testing.T) {
	db := newTestDB(t)
	h := newTestRouter(t, db, nil)

	rr := do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{record(1, 1), record(2, 1), record(3, 1)})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	edited := record(1, 5)
	rr = do(t, h, http.MethodPost, "/api/inout/save", []model.InOutRecord{edited})
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	got, err := database.GetInOutRecordsBySlip(db, "IO26101900001")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, edited, got[0])
}

func TestReceiptsRequiresDate(t *testing.T) {
	h := newTestRouter(t, newTestDB(t), nil)
	rr := do(t, h, http.MethodGet, "/api/inout/receipts?date=2026", nil)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSearchHandler(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`INSERT INTO jcshms (JC000, JC009, JC018, JC020, JC022, JC039, JC044, JC048, JC049)
		VALUES ('4987123456789', 'YJ1', 'ロキソニン錠', '60mg', 'ﾛｷｿﾆﾝ', '錠', 100, '10', 10.1)`)
	require.NoError(t, err)
	h := newTestRouter(t, db, nil)

	rr := do(t, h, http.MethodGet, "/api/inout/search?name=ロキソ", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got []model.DrugCandidate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	require.Len(t, got, 1)
	assert.Equal(t, "YJ1", got[0].YjCode)

	rr = do(t, h, http.MethodGet, "/api/inout/search?name=none", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `[]`, rr.Body.String())
}

func TestDrugByJanHandler(t *testing.T) {
	db := newTestDB(t)
	_, err := db.Exec(`INSERT INTO jcshms (JC000, JC009, JC018, JC020, JC022, JC039, JC044, JC048, JC049)
		VALUES ('4987123456789', 'YJ1', 'ロキソニン錠', '60mg', 'ﾛｷｿﾆﾝ', '錠', 100, '10', 10.1)`)
	require.NoError(t, err)
	h := newTestRouter(t, db, nil)

	rr := do(t, h, http.MethodGet, "/api/inout/drug/4987123456789", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var got model.DrugCandidate
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &got))
	assert.Equal(t, "4987123456789", got.JanCode)
	assert.Equal(t, "YJ1", got.YjCode)

	rr = do(t, h, http.MethodGet, "/api/inout/drug/4900000000000", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func candidate() *model.DrugCandidate {
	return &model.DrugCandidate{
		JanCode:              "4987123456789",
		UnitPrice:            100,
		PackTotal:            10,
		Coefficient:          10,
		PackQuantityNumber:   5,
		PackQuantityUnitCode: 50,
		UnitName:             "錠",
	}
}

func TestCalculate(t *testing.T) {
	m := metrics.NewDomain(prometheus.NewRegistry())
	h := newTestRouter(t, newTestDB(t), m)

	body := map[string]interface{}{
		"taxRate": "8",
		"lines": []map[string]interface{}{
			{"lineNumber": 1, "candidate": candidate(), "quantity": "３"},
			{"lineNumber": 2, "candidate": candidate(), "quantity": 0},
			{"lineNumber": 3, "quantity": 4},
		},
	}
	rr := do(t, h, http.MethodPost, "/api/inout/calculate", body)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

	var resp CalculateResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Lines, 3)
	assert.Equal(t, CalculatedLine{
		LineNumber: 1, State: "quantified", Packaging: "5錠/箱", UnitCode: "50", UnitLabel: "箱",
		BaseUnitPrice: 100, RealQuantity: 15, NetAmount: 1500, TaxAmount: 120,
	}, resp.Lines[0])
	assert.Equal(t, "bound", resp.Lines[1].State)
	assert.Equal(t, "empty", resp.Lines[2].State)
	assert.Equal(t, int64(1620), resp.Totals.GrandTotal)
	assert.Equal(t, 8.0, resp.TaxRate)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Calculations))
}

func TestCalculateDefaultsAndErrors(t *testing.T) {
	s := config.DefaultSettings()

	resp, err := Calculate(CalculateRequest{Lines: []CalculateLine{
		{LineNumber: 12, Candidate: candidate(), Quantity: json.RawMessage(`1`)},
	}}, nil, s)
	require.NoError(t, err)
	assert.Equal(t, 10.0, resp.TaxRate)
	assert.Equal(t, "5錠/錠", resp.Lines[0].Packaging)
	assert.Equal(t, int64(550), resp.Totals.GrandTotal)

	_, err = Calculate(CalculateRequest{Lines: []CalculateLine{{LineNumber: 0}}}, nil, s)
	assert.Error(t, err)

	_, err = Calculate(CalculateRequest{Lines: []CalculateLine{
		{LineNumber: 5_000_000, Quantity: json.RawMessage(`"1"`)},
	}}, nil, s)
	assert.ErrorIs(t, err, pricing.ErrLineOutOfRange)

	resp, err = Calculate(CalculateRequest{Lines: []CalculateLine{
		{LineNumber: MaxCalculateLines, Candidate: candidate(), Quantity: json.RawMessage(`1`)},
	}}, nil, s)
	require.NoError(t, err)
	assert.Equal(t, MaxCalculateLines, resp.Lines[0].LineNumber)
}

func TestCalculateRejectsOversizedLineNumber(t *testing.T) {
	h := newTestRouter(t, newTestDB(t), nil)

	body := map[string]interface{}{
		"lines": []map[string]interface{}{
			{"lineNumber": 2147483647, "quantity": "1"},
		},
	}
	rr := do(t, h, http.MethodPost, "/api/inout/calculate", body)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "out of range")
}

func TestFilterSavable(t *testing.T) {
	zeroReal := record(2, 1)
	zeroReal.Quantity = 0
	out, skipped := FilterSavable([]model.InOutRecord{record(1, 1), zeroReal, {JanCode: " "}})
	assert.Len(t, out, 1)
	assert.Equal(t, 2, skipped)
}
