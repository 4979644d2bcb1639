package database

import (
	"fmt"
	"strings"

	"yamato/model"
)

const drugSearchLimit = 100

// drugCandidateSelect は JCSHMS と JANCODE を JAN で結合し、品目候補の列を取り出します。
// 包装数量 (JA006/JA007) は JANCODE に無い品目もあるため LEFT JOIN です。
const drugCandidateSelect = `
	SELECT
		j.JC009 AS yj_code,
		j.JC000 AS jan_code,
		j.JC018 AS name,
		j.JC020 AS spec,
		j.JC049 AS unit_price,
		j.JC044 AS pack_total,
		COALESCE(NULLIF(j.JC048, ''), '0') AS coefficient,
		ja.JA006 AS pack_quantity_number,
		ja.JA007 AS pack_quantity_unit_code,
		j.JC039 AS unit_name
	FROM jcshms AS j
	LEFT JOIN jancode AS ja ON j.JC000 = ja.JA001
`

// SearchDrugCandidates は商品名（またはカナ名）と規格で品目を検索します。
// jan を指定した場合は JAN の完全一致で絞り込みます。最大 100 件です。
func SearchDrugCandidates(db DBTX, name, spec, jan string) ([]model.DrugCandidate, error) {
	query := drugCandidateSelect + `WHERE (j.JC018 LIKE ? OR j.JC022 LIKE ?) AND j.JC020 LIKE ?`
	namePattern := "%" + strings.TrimSpace(name) + "%"
	args := []interface{}{namePattern, namePattern, "%" + strings.TrimSpace(spec) + "%"}

	if jan = strings.TrimSpace(jan); jan != "" {
		query += ` AND j.JC000 = ?`
		args = append(args, jan)
	}
	query += fmt.Sprintf(` ORDER BY j.JC022, j.JC000 LIMIT %d`, drugSearchLimit)

	out := []model.DrugCandidate{}
	if err := db.Select(&out, query, args...); err != nil {
		return nil, fmt.Errorf("SearchDrugCandidates failed: %w", err)
	}
	return out, nil
}

// GetDrugCandidateByJan は JAN で1件取得します。見つからなければ nil を返します。
func GetDrugCandidateByJan(db DBTX, jan string) (*model.DrugCandidate, error) {
	var out []model.DrugCandidate
	if err := db.Select(&out, drugCandidateSelect+`WHERE j.JC000 = ? LIMIT 1`, jan); err != nil {
		return nil, fmt.Errorf("GetDrugCandidateByJan failed for jan %s: %w", jan, err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return &out[0], nil
}
