// Package config loads the server configuration from a YAML file, applies
// environment overrides, and lets explicit flags win over both.
package config

import (
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server struct {
		Address string `yaml:"address"`
		Port    int    `yaml:"port"`
	} `yaml:"server"`
	Storage struct {
		// Backend is one of memory, pebble, redis.
		Backend  string `yaml:"backend"`
		DBPath   string `yaml:"db_path"`
		RedisURL string `yaml:"redis_url"`
	} `yaml:"storage"`
	Security struct {
		AdminKeys []string `yaml:"admin_keys"`
		CORS      struct {
			AllowedOrigins []string `yaml:"allowed_origins"`
		} `yaml:"cors"`
		RateLimit struct {
			RPS   float64 `yaml:"rps"`
			Burst int     `yaml:"burst"`
		} `yaml:"rate_limit"`
	} `yaml:"security"`
	AI struct {
		APIKey          string `yaml:"api_key"`
		Model           string `yaml:"model"`
		AffirmationCron string `yaml:"affirmation_cron"`
		TTS             bool   `yaml:"tts"`
	} `yaml:"ai"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Addr returns host:port for the HTTP server.
func (c *Config) Addr() string {
	addr := c.Server.Address
	if addr == "" {
		addr = "0.0.0.0"
	}
	p := c.Server.Port
	if p == 0 {
		p = 8080
	}
	return fmt.Sprintf("%s:%d", addr, p)
}

// Load reads the YAML config file at path. A missing file is not an
// error; env and flags can carry the full configuration.
func Load(path string) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseCommandFlags defines and parses command-line flags and returns their
// values along with a map indicating which flags were explicitly set.
func ParseCommandFlags() (addr, backend, dbPath, redisURL, cfgPath string, setFlags map[string]bool) {
	addrPtr := flag.String("addr", ":8080", "HTTP listen address")
	backendPtr := flag.String("backend", "pebble", "store backend: memory|pebble|redis")
	dbPtr := flag.String("db", "./.alxie", "Pebble DB path")
	redisPtr := flag.String("redis", "", "Redis URL for the redis backend")
	cfgPtr := flag.String("config", "./config.yaml", "Path to config file")
	flag.Parse()
	setFlags = map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })
	return *addrPtr, *backendPtr, *dbPtr, *redisPtr, *cfgPtr, setFlags
}

// LoadEnvOverrides applies environment overrides onto cfg and reports
// whether any env var was used.
func LoadEnvOverrides(cfg *Config) bool {
	envUsed := false
	parseList := func(v string) []string {
		parts := []string{}
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				parts = append(parts, s)
			}
		}
		return parts
	}

	if v := os.Getenv("ALXIE_ADDR"); v != "" {
		envUsed = true
		if h, p, err := net.SplitHostPort(v); err == nil {
			cfg.Server.Address = h
			if pi, err := strconv.Atoi(p); err == nil {
				cfg.Server.Port = pi
			}
		} else {
			cfg.Server.Address = v
		}
	}
	if v := os.Getenv("ALXIE_BACKEND"); v != "" {
		envUsed = true
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("ALXIE_DB_PATH"); v != "" {
		envUsed = true
		cfg.Storage.DBPath = v
	}
	if v := os.Getenv("ALXIE_REDIS_URL"); v != "" {
		envUsed = true
		cfg.Storage.RedisURL = v
	}
	if v := os.Getenv("ALXIE_ADMIN_KEYS"); v != "" {
		envUsed = true
		cfg.Security.AdminKeys = parseList(v)
	}
	if v := os.Getenv("ALXIE_CORS_ORIGINS"); v != "" {
		envUsed = true
		cfg.Security.CORS.AllowedOrigins = parseList(v)
	}
	if v := os.Getenv("ALXIE_RATE_RPS"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			envUsed = true
			cfg.Security.RateLimit.RPS = f
		}
	}
	if v := os.Getenv("ALXIE_RATE_BURST"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			envUsed = true
			cfg.Security.RateLimit.Burst = n
		}
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		envUsed = true
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("ALXIE_AI_MODEL"); v != "" {
		envUsed = true
		cfg.AI.Model = v
	}
	if v := os.Getenv("ALXIE_AFFIRMATION_CRON"); v != "" {
		envUsed = true
		cfg.AI.AffirmationCron = v
	}
	if v := os.Getenv("ALXIE_TTS"); v != "" {
		envUsed = true
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes":
			cfg.AI.TTS = true
		default:
			cfg.AI.TTS = false
		}
	}
	if v := os.Getenv("ALXIE_LOG_LEVEL"); v != "" {
		envUsed = true
		cfg.Logging.Level = v
	}
	return envUsed
}

// ResolveConfigPath picks the config file path: an explicit flag wins,
// then ALXIE_CONFIG, then the flag default.
func ResolveConfigPath(flagVal string, flagSet bool) string {
	if flagSet {
		return flagVal
	}
	if v := os.Getenv("ALXIE_CONFIG"); v != "" {
		return v
	}
	return flagVal
}

// LoadEffective loads the config file then applies env overrides.
func LoadEffective(path string) (*Config, bool, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, false, err
	}
	envUsed := LoadEnvOverrides(cfg)
	return cfg, envUsed, nil
}
