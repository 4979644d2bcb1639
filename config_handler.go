package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"

	"yamato/config"
)

var validate = validator.New()

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("failed to encode response")
	}
}

// ヘルパー関数: エラーをJSONで返す
func writeJSONError(w http.ResponseWriter, message string, statusCode int) {
	writeJSON(w, statusCode, map[string]string{"message": message})
}

// GetConfigHandler は現在の設定を返します
func GetConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, config.GetSettings())
	}
}

// SaveConfigHandler は設定を検証して保存します。
// 送られなかった項目は現在の値のままです。
func SaveConfigHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		newCfg := config.GetSettings()
		if err := json.NewDecoder(r.Body).Decode(&newCfg); err != nil {
			writeJSONError(w, "リクエストが不正です。", http.StatusBadRequest)
			return
		}
		if err := validate.Struct(newCfg); err != nil {
			writeJSONError(w, describeConfigError(err), http.StatusBadRequest)
			return
		}
		if err := validateReloadTime(newCfg.UnitReloadAt); err != nil {
			writeJSONError(w, err.Error(), http.StatusBadRequest)
			return
		}

		if err := config.SaveSettings(newCfg); err != nil {
			log.Error().Err(err).Msg("Error saving config")
			writeJSONError(w, "設定の保存に失敗しました。", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "設定を保存しました。"})
	}
}

func describeConfigError(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "設定値が不正です。"
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fmt.Sprintf("%s(%s=%s)", fe.Field(), fe.Tag(), fe.Param()))
	}
	return "設定値が不正です: " + strings.Join(fields, ", ")
}

// validateReloadTime は単位マスタ再読込時刻 (HH:MM) を検証します。空は既定値になるので許可します。
func validateReloadTime(v string) error {
	if v == "" {
		return nil
	}
	if _, err := time.Parse("15:04", v); err != nil || len(v) != 5 {
		return fmt.Errorf("再読込時刻は HH:MM 形式で指定してください: %s", v)
	}
	return nil
}
