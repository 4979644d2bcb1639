package parsers

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rs/zerolog/log"
)

// ParsedClientCSVRecord は得意先CSVの1行を表します。
// 値は前後の空白を除いた状態で入ります。VendorCode は列が無ければ空です。
type ParsedClientCSVRecord struct {
	ClientCode string
	ClientName string
	VendorCode string
}

// ParseClientCSV は得意先マスタCSVを解析します。
//
// 1行目はヘッダーで、列は名前で引きます (順序は問いません)。
//
//	client_code,client_name,vendor_code
//	CL0001,山田卸,123456789
//
// client_code と client_name は必須列、vendor_code は任意列です。
// 先頭の UTF-8 BOM は読み飛ばします。列数が行ごとに違っても構いません。
//
// 空ファイルと必須列の欠けたヘッダーはエラーです。
// 読めない行、コードか名称が空の行はスキップして warn ログに行番号を残し、
// 残りの行だけを返します。コード形式の検査と登録 (既存コードの上書き) は呼び出し側で行います。
func ParseClientCSV(r io.Reader) ([]ParsedClientCSVRecord, error) {
	reader := csv.NewReader(SkipBOM(r))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("CSVファイルが空です")
	}
	if err != nil {
		return nil, fmt.Errorf("CSVヘッダーの読み取りに失敗: %w", err)
	}

	colIndex, err := getColIndex(header, []string{"client_code", "client_name"})
	if err != nil {
		return nil, err
	}

	var records []ParsedClientCSVRecord
	line := 1
	for {
		line++
		rec, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			log.Warn().Err(err).Int("line", line).Msg("得意先CSVの読み取りエラー (スキップ)")
			continue
		}

		get := func(key string) string {
			if idx, ok := colIndex[key]; ok && idx < len(rec) {
				return strings.TrimSpace(rec[idx])
			}
			return ""
		}

		code, name := get("client_code"), get("client_name")
		if code == "" || name == "" {
			log.Warn().Int("line", line).Msg("得意先CSV (コードまたは名称が空) (スキップ)")
			continue
		}
		records = append(records, ParsedClientCSVRecord{
			ClientCode: code,
			ClientName: name,
			VendorCode: get("vendor_code"),
		})
	}
	return records, nil
}
