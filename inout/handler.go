package inout

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"yamato/config"
	"yamato/database"
	"yamato/metrics"
	"yamato/model"
	"yamato/pricing"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}

// SearchHandler は品目検索 (商品名・規格・JAN) を行います。
func SearchHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		candidates, err := database.SearchDrugCandidates(db, q.Get("name"), q.Get("spec"), q.Get("jan"))
		if err != nil {
			log.Error().Err(err).Msg("drug search failed")
			writeError(w, http.StatusInternalServerError, "品目検索に失敗しました。")
			return
		}
		writeJSON(w, http.StatusOK, candidates)
	}
}

// DrugByJanHandler は JAN コード1件の候補を返します。バーコード入力からの直接選択に使います。
func DrugByJanHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jan := strings.TrimSpace(chi.URLParam(r, "jan"))
		c, err := database.GetDrugCandidateByJan(db, jan)
		if err != nil {
			log.Error().Err(err).Str("jan", jan).Msg("drug lookup failed")
			writeError(w, http.StatusInternalServerError, "品目の取得に失敗しました。")
			return
		}
		if c == nil {
			writeError(w, http.StatusNotFound, "品目が見つかりません: "+jan)
			return
		}
		writeJSON(w, http.StatusOK, c)
	}
}

// SaveResponse は保存結果です。
type SaveResponse struct {
	Message     string   `json:"message"`
	Saved       int      `json:"saved"`
	Skipped     int      `json:"skipped"`
	SlipNumbers []string `json:"slipNumbers"`
}

// FilterSavable は JAN が空または数量 0 の明細を除き、残りと除外件数を返します。
func FilterSavable(records []model.InOutRecord) ([]model.InOutRecord, int) {
	out := make([]model.InOutRecord, 0, len(records))
	for _, rec := range records {
		if strings.TrimSpace(rec.JanCode) == "" || rec.Quantity == 0 || rec.JanQuantity == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, len(records) - len(out)
}

// SaveHandler は入出庫明細の配列を受け取り、1トランザクションで保存します。
// 伝票番号が空の明細はこのトランザクション内で採番するので、同時に保存しても番号は重複しません。
func SaveHandler(db *sqlx.DB, m *metrics.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var records []model.InOutRecord
		if err := json.NewDecoder(r.Body).Decode(&records); err != nil {
			writeError(w, http.StatusBadRequest, "リクエストが不正です。")
			return
		}

		savable, skipped := FilterSavable(records)
		for _, rec := range savable {
			if err := validate.Struct(rec); err != nil {
				writeError(w, http.StatusBadRequest, fmt.Sprintf("%d行目: %s", rec.LineNumber, describeValidation(err)))
				return
			}
		}

		tx, err := db.Beginx()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "データベーストランザクションの開始に失敗しました。")
			return
		}
		defer tx.Rollback()

		slips, err := database.SaveInOutSlipsInTx(tx, savable)
		if err != nil {
			log.Error().Err(err).Msg("Failed to persist inout records")
			writeError(w, http.StatusInternalServerError, "明細の保存に失敗しました。")
			return
		}
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "データベースのコミットに失敗しました。")
			return
		}

		if len(savable) > 0 {
			m.SlipSaved(savable[0].TransactionType, len(savable), skipped)
		}
		log.Info().Int("saved", len(savable)).Int("skipped", skipped).Strs("slips", slips).Msg("inout records saved")

		writeJSON(w, http.StatusOK, SaveResponse{
			Message:     "保存しました",
			Saved:       len(savable),
			Skipped:     skipped,
			SlipNumbers: slips,
		})
	}
}

// describeValidation は validator のエラーを項目名の一覧にします。
func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s)", fe.Field(), fe.Tag()))
	}
	return "入力値が不正です: " + strings.Join(fields, ", ")
}

// CalculateLine は再計算リクエストの1行です。数量は文字列でも数値でも受け付けます。
type CalculateLine struct {
	LineNumber int                  `json:"lineNumber"`
	Candidate  *model.DrugCandidate `json:"candidate"`
	Quantity   json.RawMessage      `json:"quantity"`
}

type CalculateRequest struct {
	TaxRate json.RawMessage `json:"taxRate"`
	Lines   []CalculateLine `json:"lines"`
}

// CalculatedLine は1行の計算結果です。
type CalculatedLine struct {
	LineNumber    int     `json:"lineNumber"`
	State         string  `json:"state"`
	Packaging     string  `json:"packaging"`
	UnitCode      string  `json:"unitCode"`
	UnitLabel     string  `json:"unitLabel"`
	BaseUnitPrice float64 `json:"baseUnitPrice"`
	RealQuantity  float64 `json:"realQuantity"`
	NetAmount     int64   `json:"netAmount"`
	TaxAmount     int64   `json:"taxAmount"`
}

type CalculateResponse struct {
	TaxRate float64          `json:"taxRate"`
	Lines   []CalculatedLine `json:"lines"`
	Totals  pricing.Totals   `json:"totals"`
}

// rawText は JSON の文字列・数値・null をそのまま入力文字列として扱います。
func rawText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}

// MaxCalculateLines は計算 API で受け付ける行番号の上限です (設定の slipRows がこれより大きければそちら)。
const MaxCalculateLines = 100

// Calculate は画面の再計算と同じ手順で伝票を計算します。
// taxRate が省略された場合は設定の既定税率を使います。
func Calculate(req CalculateRequest, labels pricing.UnitLabeler, s config.Settings) (CalculateResponse, error) {
	capacity := s.SlipRows
	limit := max(s.SlipRows, MaxCalculateLines)
	for _, l := range req.Lines {
		if l.LineNumber < 1 || l.LineNumber > limit {
			return CalculateResponse{}, fmt.Errorf("%w: %d (1-%d)", pricing.ErrLineOutOfRange, l.LineNumber, limit)
		}
		if l.LineNumber > capacity {
			capacity = l.LineNumber
		}
	}

	doc := pricing.NewDocument(capacity)
	if len(req.TaxRate) == 0 || string(req.TaxRate) == "null" {
		doc.SetTaxRateValue(decimal.NewFromFloat(s.DefaultTaxRate))
	} else {
		doc.SetTaxRate(rawText(req.TaxRate))
	}
	for _, l := range req.Lines {
		if l.Candidate != nil {
			if _, err := doc.Bind(l.LineNumber, pricing.Bind(*l.Candidate, labels)); err != nil {
				return CalculateResponse{}, err
			}
		}
		if _, err := doc.SetQuantity(l.LineNumber, rawText(l.Quantity)); err != nil {
			return CalculateResponse{}, err
		}
	}

	resp := CalculateResponse{Totals: doc.Totals(), Lines: make([]CalculatedLine, 0, len(req.Lines))}
	resp.TaxRate, _ = doc.TaxRate().Float64()
	for _, l := range req.Lines {
		line, err := doc.Line(l.LineNumber)
		if err != nil {
			return CalculateResponse{}, err
		}
		resp.Lines = append(resp.Lines, calculatedLine(line))
	}
	return resp, nil
}

func calculatedLine(l pricing.Line) CalculatedLine {
	out := CalculatedLine{
		LineNumber: l.Number,
		State:      l.State().String(),
		NetAmount:  l.Result.NetAmount,
		TaxAmount:  l.Result.TaxAmount,
	}
	out.RealQuantity, _ = l.Result.RealQuantity.Float64()
	if p := l.Packaging; p != nil {
		out.Packaging = p.Display()
		out.UnitCode = p.UnitCode()
		out.UnitLabel = p.UnitLabel()
		out.BaseUnitPrice, _ = p.BaseUnitPrice().Float64()
	}
	return out
}

// CalculateHandler はサーバー側で伝票を再計算します。
func CalculateHandler(labels pricing.UnitLabeler, m *metrics.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CalculateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "リクエストが不正です。")
			return
		}
		resp, err := Calculate(req, labels, config.GetSettings())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		m.Calculated()
		writeJSON(w, http.StatusOK, resp)
	}
}

// ReceiptsHandler は日付 (YYYYMMDD) の伝票番号一覧を返します。
func ReceiptsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := CompactDate(r.URL.Query().Get("date"))
		if len(date) != 8 {
			writeError(w, http.StatusBadRequest, "日付は YYYYMMDD 形式で指定してください。")
			return
		}
		numbers, err := database.GetSlipNumbersByDate(db, date, r.URL.Query().Get("vendor"))
		if err != nil {
			log.Error().Err(err).Msg("receipt list failed")
			writeError(w, http.StatusInternalServerError, "伝票番号の取得に失敗しました。")
			return
		}
		writeJSON(w, http.StatusOK, numbers)
	}
}

// GetSlipHandler は伝票番号の明細を行番号順に返します。
func GetSlipHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		records, err := database.GetInOutRecordsBySlip(db, number)
		if err != nil {
			log.Error().Err(err).Str("slip", number).Msg("slip lookup failed")
			writeError(w, http.StatusInternalServerError, "伝票の取得に失敗しました。")
			return
		}
		if len(records) == 0 {
			writeError(w, http.StatusNotFound, "伝票が見つかりません: "+number)
			return
		}
		writeJSON(w, http.StatusOK, records)
	}
}

// DeleteSlipHandler は伝票を削除します。
func DeleteSlipHandler(db *sqlx.DB, m *metrics.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		number := chi.URLParam(r, "number")
		tx, err := db.Beginx()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "データベーストランザクションの開始に失敗しました。")
			return
		}
		defer tx.Rollback()

		n, err := database.DeleteSlipInTx(tx, number)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if n == 0 {
			writeError(w, http.StatusNotFound, "伝票が見つかりません: "+number)
			return
		}
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "データベースのコミットに失敗しました。")
			return
		}
		m.SlipDeleted()
		writeJSON(w, http.StatusOK, map[string]string{"message": "削除しました"})
	}
}

// NextSlipNumberHandler は日付に対する次の伝票番号を発行します。発行した番号は他の呼び出しに再び渡しません。
func NextSlipNumberHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		date := CompactDate(r.URL.Query().Get("date"))
		if len(date) != 8 {
			writeError(w, http.StatusBadRequest, "日付は YYYYMMDD 形式で指定してください。")
			return
		}
		tx, err := db.Beginx()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "データベーストランザクションの開始に失敗しました。")
			return
		}
		defer tx.Rollback()

		number, err := database.NextSlipNumberInTx(tx, date)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if err := tx.Commit(); err != nil {
			writeError(w, http.StatusInternalServerError, "データベースのコミットに失敗しました。")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"slipNumber": number})
	}
}
