package units

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"
)

// Store は単位コードと単位名の対応表です。定期再読込と画面からの参照が
// 並行して走るため、読み書きはロックで保護します。
type Store struct {
	mu    sync.RWMutex
	names map[string]string
}

func NewStore() *Store {
	return &Store{names: map[string]string{}}
}

// Default はサーバー全体で共有する単位マスタです。
var Default = NewStore()

// Replace は対応表を m で丸ごと置き換えます。
func (s *Store) Replace(m map[string]string) {
	names := make(map[string]string, len(m))
	for code, name := range m {
		names[code] = name
	}
	s.mu.Lock()
	s.names = names
	s.mu.Unlock()
}

// Label は単位コードに対応する単位名を返します。
func (s *Store) Label(code string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	name, ok := s.names[code]
	return name, ok
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.names)
}

// Snapshot は対応表のコピーを返します。
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.names))
	for k, v := range s.names {
		out[k] = v
	}
	return out
}

// Reload は path の TANI.CSV を読み直して対応表を置き換えます。
// 読み込みに失敗した場合は既存の対応表を残します。
func (s *Store) Reload(path string) error {
	m, err := ReadTANIFile(path)
	if err != nil {
		return err
	}
	s.Replace(m)
	log.Info().Str("path", path).Int("units", len(m)).Msg("unit master loaded")
	return nil
}

// ReadTANI は Shift-JIS の TANI.CSV を読み、単位コードと単位名のマップを返します。
func ReadTANI(r io.Reader) (map[string]string, error) {
	reader := csv.NewReader(transform.NewReader(r, japanese.ShiftJIS.NewDecoder()))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	m := make(map[string]string)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("ReadTANI: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		code := strings.TrimSpace(record[0])
		if code == "" {
			continue
		}
		m[code] = strings.TrimSpace(record[1])
	}
	return m, nil
}

func ReadTANIFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("ReadTANIFile: open %s: %w", path, err)
	}
	defer file.Close()

	m, err := ReadTANI(file)
	if err != nil {
		return nil, fmt.Errorf("ReadTANIFile: read %s: %w", path, err)
	}
	return m, nil
}

// Labels は取得済みの単位マップをそのまま引くための型です（画面側で使います）。
type Labels map[string]string

func (l Labels) Label(code string) (string, bool) {
	name, ok := l[code]
	return name, ok
}

// GetTaniMapHandler は単位コードと単位名のマップを JSON で返します。
func GetTaniMapHandler(s *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.Snapshot()); err != nil {
			log.Error().Err(err).Msg("failed to encode unit map")
		}
	}
}
