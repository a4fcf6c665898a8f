package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/ezzatron/fake-geolocation-demo/internal/logging"
	"github.com/ezzatron/fake-geolocation-demo/internal/route"
)

type Config struct {
	RouteFile      string
	RouteFormat    route.Format
	RouteStartTime time.Time // zero means now
	JourneyID      string
	TrimStart      time.Duration // cut from the start of the journey
	TrimEnd        time.Duration // cut from the end of the journey

	TickInterval time.Duration
	Autoplay     bool
	Loop         bool

	NATSURL           string // empty disables publishing
	NATSSubjectPrefix string
	LogNATSSubjects   bool

	HTTPAddr    string
	MetricsAddr string
	LogLevel    string
	LogEncoding string

	DatabaseURL string
	City        string
	GTFSTripID  string
	Location    *time.Location
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	if f := v.GetString("CONFIG_FILE"); f != "" {
		v.SetConfigFile(f)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("invalid CONFIG_FILE %q: %w", f, err)
		}
	}

	return fromViper(v)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("TICK_INTERVAL_MS", 100)
	v.SetDefault("TRIM_START_MS", 0)
	v.SetDefault("TRIM_END_MS", 0)
	v.SetDefault("AUTOPLAY", "true")
	v.SetDefault("LOOP", "false")
	v.SetDefault("NATS_SUBJECT_PREFIX", "journey")
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_ENCODING", "console")
	v.SetDefault("PGHOST", "127.0.0.1")
	v.SetDefault("PGPORT", "5432")
	v.SetDefault("PGUSER", "postgres")
	v.SetDefault("PGSSLMODE", "disable")
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{
		RouteFile:         strings.TrimSpace(v.GetString("ROUTE_FILE")),
		NATSURL:           v.GetString("NATS_URL"),
		NATSSubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
		HTTPAddr:          v.GetString("HTTP_ADDR"),
		MetricsAddr:       v.GetString("METRICS_ADDR"),
		LogEncoding:       strings.ToLower(v.GetString("LOG_ENCODING")),
		GTFSTripID:        v.GetString("GTFS_TRIP_ID"),
		City:              firstNonEmpty(v.GetString("CITY"), v.GetString("CITY_NAME")),
	}

	// Route format: explicit, else inferred from the file extension
	if f := v.GetString("ROUTE_FORMAT"); f != "" {
		format, err := route.ParseFormat(f)
		if err != nil {
			return nil, fmt.Errorf("invalid ROUTE_FORMAT: %q", f)
		}
		cfg.RouteFormat = format
	} else if cfg.RouteFile != "" {
		format, err := route.FormatFromPath(cfg.RouteFile)
		if err != nil {
			return nil, fmt.Errorf("ROUTE_FORMAT must be set for ROUTE_FILE %q", cfg.RouteFile)
		}
		cfg.RouteFormat = format
	}

	if cfg.RouteFormat == route.FormatGTFS {
		dsn, err := databaseURL(v)
		if err != nil {
			return nil, err
		}
		cfg.DatabaseURL = dsn
	} else if cfg.RouteFile == "" {
		return nil, errors.New("ROUTE_FILE must be set unless ROUTE_FORMAT=gtfs")
	}

	if s := v.GetString("ROUTE_START_TIME"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("invalid ROUTE_START_TIME: %q", s)
		}
		cfg.RouteStartTime = t
	}

	cfg.JourneyID = v.GetString("JOURNEY_ID")
	if cfg.JourneyID == "" {
		cfg.JourneyID = defaultJourneyID(cfg)
	}

	s := v.GetString("TICK_INTERVAL_MS")
	ms, err := strconv.Atoi(s)
	if err != nil || ms <= 0 {
		return nil, fmt.Errorf("invalid TICK_INTERVAL_MS: %q", s)
	}
	cfg.TickInterval = time.Duration(ms) * time.Millisecond

	for key, dst := range map[string]*time.Duration{
		"TRIM_START_MS": &cfg.TrimStart,
		"TRIM_END_MS":   &cfg.TrimEnd,
	} {
		s := v.GetString(key)
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil || ms < 0 {
			return nil, fmt.Errorf("invalid %s: %q", key, s)
		}
		*dst = time.Duration(ms) * time.Millisecond
	}

	for key, dst := range map[string]*bool{
		"AUTOPLAY":          &cfg.Autoplay,
		"LOOP":              &cfg.Loop,
		"LOG_NATS_SUBJECTS": &cfg.LogNATSSubjects,
	} {
		b, err := parseBool(v.GetString(key))
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %q", key, v.GetString(key))
		}
		*dst = b
	}

	cfg.LogLevel = v.GetString("LOG_LEVEL")
	if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %q", cfg.LogLevel)
	}
	if cfg.LogEncoding != "json" && cfg.LogEncoding != "console" {
		return nil, fmt.Errorf("invalid LOG_ENCODING: %q", cfg.LogEncoding)
	}

	// Time zone of GTFS service days
	if tz := v.GetString("TZ"); tz == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid TZ: %v", err)
		}
		cfg.Location = loc
	}

	return cfg, nil
}

// databaseURL prefers DATABASE_URL / PG_DSN, else builds a DSN from PG* vars.
func databaseURL(v *viper.Viper) (string, error) {
	if dsn := firstNonEmpty(v.GetString("DATABASE_URL"), v.GetString("PG_DSN")); dsn != "" {
		return dsn, nil
	}

	db := v.GetString("PGDATABASE")
	// If CITY is provided, default base DB to 'postgres' when PGDATABASE is not set.
	if db == "" && firstNonEmpty(v.GetString("CITY"), v.GetString("CITY_NAME")) != "" {
		db = "postgres"
	}
	if db == "" {
		return "", errors.New("PGDATABASE or DATABASE_URL must be set (set PGDATABASE=postgres when using CITY)")
	}

	user := urlEscape(v.GetString("PGUSER"))
	if pass := v.GetString("PGPASSWORD"); pass != "" {
		user += ":" + urlEscape(pass)
	}
	return fmt.Sprintf("postgres://%s@%s:%s/%s?sslmode=%s",
		user, v.GetString("PGHOST"), v.GetString("PGPORT"), db, v.GetString("PGSSLMODE")), nil
}

func defaultJourneyID(cfg *Config) string {
	if cfg.RouteFormat == route.FormatGTFS {
		return firstNonEmpty(cfg.GTFSTripID, "gtfs")
	}
	base := filepath.Base(cfg.RouteFile)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "", "0", "false", "f", "no", "n", "off":
		return false, nil
	}
	return false, fmt.Errorf("invalid boolean %q", s)
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func urlEscape(s string) string {
	// Minimal escape for DSN user/pass with special chars
	r := strings.NewReplacer("@", "%40", ":", "%3A", "/", "%2F", "?", "%3F", "#", "%23")
	return r.Replace(s)
}
