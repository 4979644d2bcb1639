package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"yamato/config"
	"yamato/database"
)

// InitDatabase はスキーマを適用し、マスタCSVをロードし、得意先連番を初期化します。
func InitDatabase(db *sqlx.DB, s config.Settings) error {
	log.Info().Msg("Applying database schema...")
	if err := database.ApplySchema(db); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}

	if err := LoadMasters(db, s); err != nil {
		return err
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction for sequence initialization: %w", err)
	}
	defer tx.Rollback()

	if err := database.InitializeSequenceFromMaxClientCode(tx); err != nil {
		log.Warn().Err(err).Msg("Failed to initialize CL sequence")
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sequence initialization: %w", err)
	}
	log.Info().Msg("Database initialization complete.")
	return nil
}

// LoadMasters は JCSHMS.CSV と JANCODE.CSV を読み込みます。ファイルが無いものは読み飛ばします。
func LoadMasters(db *sqlx.DB, s config.Settings) error {
	targets := []struct {
		path       string
		table      database.MasterTable
		skipHeader bool
	}{
		{s.JcshmsPath, database.JcshmsTable, false}, // JCSHMS はヘッダーなし
		{s.JancodePath, database.JancodeTable, true},
	}
	for _, tg := range targets {
		if _, err := os.Stat(tg.path); os.IsNotExist(err) {
			log.Warn().Str("path", tg.path).Msg("master file not found, skipping")
			continue
		}
		if err := LoadCSV(db, tg.path, tg.table, tg.skipHeader); err != nil {
			return fmt.Errorf("failed to load %s: %w", tg.path, err)
		}
	}
	return nil
}

// LoadCSV は Shift-JIS のマスタCSVを読み込み、table に INSERT OR REPLACE します。
func LoadCSV(db *sqlx.DB, path string, table database.MasterTable, skipHeader bool) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("could not open file %s: %w", path, err)
	}
	defer f.Close()
	return LoadCSVReader(db, f, table, skipHeader)
}

// LoadCSVReader は LoadCSV の本体です。全行を1トランザクションで登録します。
func LoadCSVReader(db *sqlx.DB, src io.Reader, table database.MasterTable, skipHeader bool) (err error) {
	r := csv.NewReader(transform.NewReader(src, japanese.ShiftJIS.NewDecoder()))
	r.LazyQuotes = true
	r.FieldsPerRecord = -1

	if skipHeader {
		if _, err := r.Read(); err != nil && err != io.EOF {
			return fmt.Errorf("failed to skip header for %s: %w", table.Name, err)
		}
	}

	tx, err := db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			log.Error().Err(err).Str("table", table.Name).Msg("Rolling back master load")
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	expected := table.Columns
	placeholders := strings.Repeat("?,", expected-1) + "?"
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT OR REPLACE INTO %s VALUES (%s)", table.Name, placeholders))
	if err != nil {
		return fmt.Errorf("failed to prepare statement for %s: %w", table.Name, err)
	}
	defer stmt.Close()

	rowCount := 0
	for {
		row, readErr := r.Read()
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			log.Warn().Err(readErr).Str("table", table.Name).Msg("Error reading row (skipping)")
			continue
		}
		if len(row) < expected {
			continue
		}
		row = row[:expected]

		args := make([]interface{}, expected)
		for i := 0; i < expected; i++ {
			args[i] = convertColumn(table.ColumnTypes[i], strings.TrimSpace(row[i]))
		}
		if _, execErr := stmt.Exec(args...); execErr != nil {
			return fmt.Errorf("failed to execute statement for %s: %w", table.Name, execErr)
		}
		rowCount++
	}

	log.Info().Str("table", table.Name).Int("rows", rowCount).Msg("Inserted or replaced master rows")
	return nil
}

// convertColumn は列の型に合わせて値を変換します。数値にできない値は 0 です。
func convertColumn(colType, val string) interface{} {
	switch colType {
	case "real":
		num, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0.0
		}
		return num
	case "integer":
		num, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return 0
		}
		return num
	default:
		return val
	}
}
