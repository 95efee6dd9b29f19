package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"document-submitter/documents/infra"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

type config struct {
	Endpoint string        `yaml:"endpoint"`
	Token    string        `yaml:"token"`
	Period   time.Duration `yaml:"period"`
	Limit    int           `yaml:"limit"`
	Timeout  time.Duration `yaml:"timeout"`

	DocumentFile  string `yaml:"document_file"`
	SignatureFile string `yaml:"signature_file"`
	Signature     string `yaml:"signature"`
	ProductGroup  string `yaml:"product_group"`
	DocumentType  string `yaml:"document_type"`
	Format        string `yaml:"document_format"`
	SubmitCount   int    `yaml:"submit_count"`

	LogFormat   string `yaml:"log_format"`
	LogLevel    string `yaml:"log_level"`
	MetricsAddr string `yaml:"metrics_addr"`

	PaceRPS    float64                    `yaml:"pace_rps"`
	PaceBurst  int                        `yaml:"pace_burst"`
	PaceGroups map[string]infra.GroupRate `yaml:"pace_groups"`

	StatsEnabled       bool          `yaml:"stats_enabled"`
	StatsRedisAddr     string        `yaml:"stats_redis_addr"`
	StatsRedisPassword string        `yaml:"stats_redis_password"`
	StatsRedisDB       int           `yaml:"stats_redis_db"`
	StatsPrefix        string        `yaml:"stats_prefix"`
	StatsTTL           time.Duration `yaml:"stats_ttl"`
	StatsBucket        string        `yaml:"stats_bucket"`
	StatsTrackGroups   bool          `yaml:"stats_track_groups"`
}

func defaultConfig() config {
	return config{
		Endpoint:    "https://ismp.crpt.ru/api/v3/lk/documents/create",
		Period:      time.Second,
		Limit:       10,
		Timeout:     30 * time.Second,
		SubmitCount: 1,
		LogFormat:   "json",
		LogLevel:    "info",
		PaceBurst:   1,
		StatsPrefix: "documents:stats",
		StatsTTL:    24 * time.Hour,
		StatsBucket: "minute",
	}
}

// readConfig aplica, nesta ordem: padrões, arquivo YAML (CONFIG_FILE) e variáveis de ambiente.
func readConfig() (config, error) {
	cfg := defaultConfig()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return config{}, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return config{}, err
	}

	if err := cfg.validate(); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return errors.WithMessagef(err, "read config file %q", path)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return errors.WithMessagef(err, "parse config file %q", path)
	}
	return nil
}

func applyEnv(cfg *config) error {
	env := &envReader{}

	cfg.Endpoint = env.get("API_URL", cfg.Endpoint)
	cfg.Token = env.get("API_TOKEN", cfg.Token)
	// IMPORTANTE: RATE_LIMIT envios por RATE_PERIOD, com recarga total a cada período
	// (não é janela deslizante).
	cfg.Period = env.getDuration("RATE_PERIOD", cfg.Period)
	cfg.Limit = env.getInt("RATE_LIMIT", cfg.Limit)
	cfg.Timeout = env.getDuration("REQUEST_TIMEOUT", cfg.Timeout)

	cfg.DocumentFile = env.get("DOCUMENT_FILE", cfg.DocumentFile)
	cfg.SignatureFile = env.get("SIGNATURE_FILE", cfg.SignatureFile)
	cfg.Signature = env.get("SIGNATURE", cfg.Signature)
	cfg.ProductGroup = env.get("PRODUCT_GROUP", cfg.ProductGroup)
	cfg.DocumentType = env.get("DOCUMENT_TYPE", cfg.DocumentType)
	cfg.Format = env.get("DOCUMENT_FORMAT", cfg.Format)
	cfg.SubmitCount = env.getInt("SUBMIT_COUNT", cfg.SubmitCount)

	cfg.LogFormat = env.get("LOG_FORMAT", cfg.LogFormat)
	cfg.LogLevel = env.get("LOG_LEVEL", cfg.LogLevel)
	cfg.MetricsAddr = env.get("METRICS_ADDR", cfg.MetricsAddr)

	cfg.PaceRPS = env.getFloat("PACE_RPS", cfg.PaceRPS)
	cfg.PaceBurst = env.getInt("PACE_BURST", cfg.PaceBurst)
	cfg.PaceGroups = env.getGroupRates("PACE_GROUPS", cfg.PaceGroups)

	cfg.StatsEnabled = env.getBool("STATS_ENABLED", cfg.StatsEnabled)
	cfg.StatsRedisAddr = env.get("STATS_REDIS_ADDR", cfg.StatsRedisAddr)
	cfg.StatsRedisPassword = env.get("STATS_REDIS_PASSWORD", cfg.StatsRedisPassword)
	cfg.StatsRedisDB = env.getInt("STATS_REDIS_DB", cfg.StatsRedisDB)
	cfg.StatsPrefix = env.get("STATS_PREFIX", cfg.StatsPrefix)
	cfg.StatsTTL = env.getDuration("STATS_TTL", cfg.StatsTTL)
	cfg.StatsBucket = env.get("STATS_BUCKET", cfg.StatsBucket)
	cfg.StatsTrackGroups = env.getBool("STATS_TRACK_GROUPS", cfg.StatsTrackGroups)

	return env.err
}

func (cfg config) validate() error {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return errors.New("API_URL is required")
	}
	if cfg.Limit < 1 {
		return errors.New("RATE_LIMIT must be >= 1")
	}
	if cfg.Period <= 0 {
		return errors.New("RATE_PERIOD must be > 0")
	}
	if cfg.DocumentFile == "" {
		return errors.New("DOCUMENT_FILE is required")
	}
	if cfg.Signature == "" && cfg.SignatureFile == "" {
		return errors.New("SIGNATURE or SIGNATURE_FILE is required")
	}
	if cfg.SubmitCount < 1 {
		return errors.New("SUBMIT_COUNT must be >= 1")
	}
	if cfg.PaceRPS < 0 {
		return errors.New("PACE_RPS must be >= 0")
	}
	if cfg.PaceRPS > 0 && cfg.PaceBurst < 1 {
		return errors.New("PACE_BURST must be >= 1 when PACE_RPS is set")
	}
	for group, r := range cfg.PaceGroups {
		if r.RPS < 0 {
			return errors.Errorf("PACE_GROUPS: rps for %q must be >= 0", group)
		}
		if r.RPS > 0 && r.Burst < 1 {
			return errors.Errorf("PACE_GROUPS: burst for %q must be >= 1", group)
		}
	}
	if cfg.StatsEnabled && strings.TrimSpace(cfg.StatsRedisAddr) == "" {
		return errors.New("STATS_REDIS_ADDR is required when STATS_ENABLED=true")
	}
	return nil
}

// envReader lê variáveis de ambiente sobre os valores atuais. Variável vazia mantém
// o valor; variável inválida vira erro (guarda só o primeiro).
type envReader struct {
	err error
}

func (e *envReader) fail(k, v string, err error) {
	if e.err == nil {
		e.err = errors.WithMessagef(err, "invalid %s=%q", k, v)
	}
}

func (e *envReader) get(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func (e *envReader) getInt(k string, def int) int {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return i
}

func (e *envReader) getFloat(k string, def float64) float64 {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return f
}

func (e *envReader) getBool(k string, def bool) bool {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return b
}

func (e *envReader) getDuration(k string, def time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.fail(k, v, err)
		return def
	}
	return d
}

// getGroupRates lê "grupo=rps:burst,grupo=rps:burst" e substitui o mapa inteiro.
func (e *envReader) getGroupRates(k string, def map[string]infra.GroupRate) map[string]infra.GroupRate {
	v := os.Getenv(k)
	if v == "" {
		return def
	}
	out := make(map[string]infra.GroupRate)
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		group, spec, ok := strings.Cut(item, "=")
		if !ok || strings.TrimSpace(group) == "" {
			e.fail(k, v, errors.Errorf("entry %q is not group=rps:burst", item))
			return def
		}
		rpsStr, burstStr, ok := strings.Cut(spec, ":")
		if !ok {
			e.fail(k, v, errors.Errorf("entry %q is not group=rps:burst", item))
			return def
		}
		rps, err := strconv.ParseFloat(strings.TrimSpace(rpsStr), 64)
		if err != nil {
			e.fail(k, v, err)
			return def
		}
		burst, err := strconv.Atoi(strings.TrimSpace(burstStr))
		if err != nil {
			e.fail(k, v, err)
			return def
		}
		out[strings.TrimSpace(group)] = infra.GroupRate{RPS: rps, Burst: burst}
	}
	return out
}
