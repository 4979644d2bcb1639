package loader

import (
	"encoding/json"
	"net/http"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"yamato/config"
	"yamato/units"
)

// ReloadMastersHandler は JCSHMS / JANCODE / TANI の再読み込みを行います。
func ReloadMastersHandler(db *sqlx.DB, store *units.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s := config.GetSettings()
		log.Info().Msg("HTTP request received: Reloading masters...")

		if err := LoadMasters(db, s); err != nil {
			log.Error().Err(err).Msg("master reload failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if err := store.Reload(s.TaniPath); err != nil {
			log.Warn().Err(err).Msg("Failed to reload TANI.CSV; keeping the current unit map")
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"message": "マスターの更新が完了しました。",
		})
	}
}
