package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"yamato/database"
	"yamato/metrics"
	"yamato/model"
	"yamato/parsers"
)

var (
	// 「CL」で始まるコード（得意先コード）
	clientCodeRegex = regexp.MustCompile(`^CL[0-9]+$`)
	// 9桁の数字（卸コード）
	vendorCodeRegex = regexp.MustCompile(`^[0-9]{9}$`)

	validate = validator.New()
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// ListClientsHandler は得意先一覧を返します。
func ListClientsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clients, err := database.GetAllClients(db)
		if err != nil {
			log.Error().Err(err).Msg("client list failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "得意先一覧の取得に失敗しました。"})
			return
		}
		writeJSON(w, http.StatusOK, clients)
	}
}

// RegisterClientHandler は得意先を新規登録します。同名があれば 409 です。
func RegisterClientHandler(db *sqlx.DB, m *metrics.Domain) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in model.ClientInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "リクエストが不正です。"})
			return
		}
		in.Name = strings.TrimSpace(in.Name)
		in.VendorCode = strings.TrimSpace(in.VendorCode)
		if err := validate.Struct(in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "得意先名は必須です。"})
			return
		}
		if in.VendorCode != "" && !vendorCodeRegex.MatchString(in.VendorCode) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"message": "卸コードは9桁の数字です。"})
			return
		}

		c, err := database.RegisterClient(db, in)
		if err != nil {
			if errors.Is(err, database.ErrDuplicateClient) {
				writeJSON(w, http.StatusConflict, map[string]string{"message": fmt.Sprintf("得意先名 '%s' は既に存在します。", in.Name)})
				return
			}
			log.Error().Err(err).Msg("client registration failed")
			writeJSON(w, http.StatusInternalServerError, map[string]string{"message": "得意先の登録に失敗しました。"})
			return
		}
		m.ClientAdded()
		writeJSON(w, http.StatusCreated, c)
	}
}

// ImportClientsHandler は得意先マスタCSVのインポートを処理します。
func ImportClientsHandler(db *sqlx.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		file, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "CSVファイルの読み取りに失敗: "+err.Error(), http.StatusBadRequest)
			return
		}
		defer file.Close()

		records, err := parsers.ParseClientCSV(file)
		if err != nil {
			http.Error(w, "CSVファイルの解析に失敗: "+err.Error(), http.StatusBadRequest)
			return
		}
		if len(records) == 0 {
			http.Error(w, "CSVから読み込むデータがありません。", http.StatusBadRequest)
			return
		}

		tx, err := db.Beginx()
		if err != nil {
			http.Error(w, "データベーストランザクションの開始に失敗: "+err.Error(), http.StatusInternalServerError)
			return
		}
		defer tx.Rollback()

		var imported int
		var problems []string
		for _, rec := range records {
			switch {
			case !clientCodeRegex.MatchString(rec.ClientCode):
				problems = append(problems, fmt.Sprintf("スキップ: コード %s (形式不正)", rec.ClientCode))
			case rec.VendorCode != "" && !vendorCodeRegex.MatchString(rec.VendorCode):
				problems = append(problems, fmt.Sprintf("スキップ: コード %s (卸コード %s が不正)", rec.ClientCode, rec.VendorCode))
			default:
				if err := database.UpsertClientInTx(tx, rec.ClientCode, rec.ClientName, rec.VendorCode); err != nil {
					log.Error().Err(err).Str("code", rec.ClientCode).Msg("Failed to upsert client")
					problems = append(problems, fmt.Sprintf("得意先 コード %s (名称: %s): %v", rec.ClientCode, rec.ClientName, err))
					continue
				}
				imported++
			}
		}

		// 取り込んだコードより後の番号から発行する
		if err := database.InitializeSequenceFromMaxClientCode(tx); err != nil {
			http.Error(w, "連番の更新に失敗: "+err.Error(), http.StatusInternalServerError)
			return
		}
		if err := tx.Commit(); err != nil {
			http.Error(w, "データベースのコミットに失敗: "+err.Error(), http.StatusInternalServerError)
			return
		}

		message := fmt.Sprintf("インポート完了。\n得意先: %d件", imported)
		if len(problems) > 0 {
			message += fmt.Sprintf("\n%d件のエラーまたはスキップが発生しました。", len(problems))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"message":  message,
			"imported": imported,
			"problems": problems,
		})
	}
}
