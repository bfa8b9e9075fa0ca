package database

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// LoadConfigFromEnv reads the DB_* variables. DATABASE_URL, when set, becomes
// the DSN and the discrete settings only tune the pool.
func LoadConfigFromEnv() (Config, error) {
	cfg := Config{
		DSN:             os.Getenv("DATABASE_URL"),
		Host:            envOr("DB_HOST", "localhost"),
		User:            envOr("DB_USER", "sherlog"),
		Password:        os.Getenv("DB_PASSWORD"),
		Database:        envOr("DB_NAME", "sherlog"),
		SSLMode:         envOr("DB_SSLMODE", "disable"),
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}

	ints := []struct {
		key  string
		def  int
		dest *int
	}{
		{"DB_PORT", 5432, &cfg.Port},
		{"DB_MAX_OPEN_CONNS", 4, &cfg.MaxOpenConns},
		{"DB_MAX_IDLE_CONNS", 2, &cfg.MaxIdleConns},
	}
	for _, v := range ints {
		raw := os.Getenv(v.key)
		if raw == "" {
			*v.dest = v.def
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s %q: must be a non-negative integer", v.key, raw)
		}
		*v.dest = n
	}
	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
