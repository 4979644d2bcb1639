package config

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Server は起動時に環境変数 (および .env) から読むサーバー設定です。
type Server struct {
	Port        int
	Address     string
	DBPath      string
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	OpenBrowser bool
}

// LoadServer は .env を読み込んだうえで環境変数からサーバー設定を組み立てます。
func LoadServer() (Server, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return Server{}, fmt.Errorf("load env: %w", err)
	}

	port := 8080
	if raw := strings.TrimSpace(k.String("PORT")); raw != "" {
		p, err := strconv.Atoi(raw)
		if err != nil || p <= 0 || p > 65535 {
			return Server{}, fmt.Errorf("invalid PORT: %q", raw)
		}
		port = p
	}

	return Server{
		Port:        port,
		Address:     valueOrDefault(k.String("ADDRESS"), "127.0.0.1"),
		DBPath:      valueOrDefault(k.String("DB_PATH"), "./yamato.db"),
		ConfigPath:  valueOrDefault(k.String("CONFIG_PATH"), "./yamato_config.json"),
		LogLevel:    valueOrDefault(k.String("LOG_LEVEL"), "info"),
		LogFormat:   valueOrDefault(k.String("LOG_FORMAT"), "console"),
		OpenBrowser: parseBool(k.String("OPEN_BROWSER"), true),
	}, nil
}

// HTTPAddr は待ち受けアドレス (host:port) です。
func (s Server) HTTPAddr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// URL はブラウザで開くアドレスです。
func (s Server) URL() string {
	host := s.Address
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port))
}

func valueOrDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

func parseBool(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}
