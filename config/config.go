package config

import (
	"encoding/json"
	"os"
	"strings"
	"sync"
)

// Settings は画面から変更できるアプリケーション設定です (yamato_config.json)。
type Settings struct {
	DefaultTaxRate float64 `json:"defaultTaxRate" validate:"gte=0,lte=100"`
	SlipRows       int     `json:"slipRows" validate:"gte=0,lte=100"`
	TaniPath       string  `json:"taniPath"`
	JcshmsPath     string  `json:"jcshmsPath"`
	JancodePath    string  `json:"jancodePath"`
	UnitReloadAt   string  `json:"unitReloadAt"`
}

const (
	defaultTaxRate      = 10
	defaultSlipRows     = 10
	defaultTaniPath     = "SOU/TANI.CSV"
	defaultJcshmsPath   = "SOU/JCSHMS.CSV"
	defaultJancodePath  = "SOU/JANCODE.CSV"
	defaultUnitReloadAt = "05:00"
)

var (
	cfg            = DefaultSettings()
	mu             sync.RWMutex
	configFilePath = "./yamato_config.json"
)

func DefaultSettings() Settings {
	return Settings{
		DefaultTaxRate: defaultTaxRate,
		SlipRows:       defaultSlipRows,
		TaniPath:       defaultTaniPath,
		JcshmsPath:     defaultJcshmsPath,
		JancodePath:    defaultJancodePath,
		UnitReloadAt:   defaultUnitReloadAt,
	}
}

// SetFilePath は設定ファイルの場所を変更します。起動時に一度だけ呼びます。
func SetFilePath(path string) {
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(path) != "" {
		configFilePath = path
	}
}

// withDefaults は未設定の項目に既定値を入れます。税率 0 は有効な値なのでそのままです。
func withDefaults(s Settings) Settings {
	if s.SlipRows <= 0 {
		s.SlipRows = defaultSlipRows
	}
	if s.TaniPath == "" {
		s.TaniPath = defaultTaniPath
	}
	if s.JcshmsPath == "" {
		s.JcshmsPath = defaultJcshmsPath
	}
	if s.JancodePath == "" {
		s.JancodePath = defaultJancodePath
	}
	if s.UnitReloadAt == "" {
		s.UnitReloadAt = defaultUnitReloadAt
	}
	return s
}

// LoadSettings は設定ファイルを読み込みます。ファイルが無ければ既定値を使います。
func LoadSettings() (Settings, error) {
	mu.Lock()
	defer mu.Unlock()

	file, err := os.ReadFile(configFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			cfg = DefaultSettings()
			return cfg, nil
		}
		return cfg, err
	}

	temp := DefaultSettings()
	if err := json.Unmarshal(file, &temp); err != nil {
		return cfg, err
	}
	cfg = withDefaults(temp)
	return cfg, nil
}

func SaveSettings(newCfg Settings) error {
	mu.Lock()
	defer mu.Unlock()

	newCfg = withDefaults(newCfg)
	file, err := json.MarshalIndent(newCfg, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(configFilePath, file, 0644); err != nil {
		return err
	}
	cfg = newCfg
	return nil
}

func GetSettings() Settings {
	mu.RLock()
	defer mu.RUnlock()
	return cfg
}
