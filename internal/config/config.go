// README: Config loader; viper defaults, optional YAML file and PARK_* env overrides.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"

	"park/internal/modules/billing"
	"park/internal/modules/spot"
	"park/internal/types"
)

const EnvPrefix = "PARK"

// SpotGroup declares either a single spot (ID) or an inclusive range such as "3-20".
type SpotGroup struct {
	ID       int    `mapstructure:"id"`
	Range    string `mapstructure:"range"`
	Category string `mapstructure:"category"`
}

type FacilityConfig struct {
	Currency  string             `mapstructure:"currency"`
	MinCharge float64            `mapstructure:"min_charge"`
	Rates     map[string]float64 `mapstructure:"rates"`
	Spots     []SpotGroup        `mapstructure:"spots"`
	Timezone  string             `mapstructure:"timezone"`
}

type ArchiveConfig struct {
	Buffer   int           `mapstructure:"buffer"`
	Timeout  time.Duration `mapstructure:"timeout"`
	MaxTries uint          `mapstructure:"max_tries"`
}

type TrafficConfig struct {
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	FlushTimeout  time.Duration `mapstructure:"flush_timeout"`
	Key           string        `mapstructure:"key"`
}

type Config struct {
	HTTP struct {
		Addr      string `mapstructure:"addr"`
		GateToken string `mapstructure:"gate_token"`
	} `mapstructure:"http"`
	DB struct {
		DSN string `mapstructure:"dsn"`
	} `mapstructure:"db"`
	Redis struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"redis"`
	Archive ArchiveConfig `mapstructure:"archive"`
	Traffic TrafficConfig `mapstructure:"traffic"`
	Log     struct {
		Level  string `mapstructure:"level"`
		Pretty bool   `mapstructure:"pretty"`
	} `mapstructure:"log"`
	Facility FacilityConfig `mapstructure:"facility"`
}

func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.gate_token", "")
	v.SetDefault("db.dsn", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("archive.buffer", 1024)
	v.SetDefault("archive.timeout", 2*time.Second)
	v.SetDefault("archive.max_tries", 5)
	v.SetDefault("traffic.flush_interval", 30*time.Second)
	v.SetDefault("traffic.flush_timeout", 2*time.Second)
	v.SetDefault("traffic.key", "park:traffic:hourly")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)

	v.SetDefault("facility.currency", types.DefaultCurrency)
	v.SetDefault("facility.min_charge", 5.0)
	v.SetDefault("facility.timezone", "UTC")
	v.SetDefault("facility.rates", map[string]float64{
		string(spot.CategoryRegular):  5.0,
		string(spot.CategoryVIP):      8.0,
		string(spot.CategoryDisabled): 2.5,
	})
	v.SetDefault("facility.spots", []map[string]any{
		{"range": "1-2", "category": string(spot.CategoryVIP)},
		{"range": "3-20", "category": string(spot.CategoryRegular)},
		{"range": "21-22", "category": string(spot.CategoryDisabled)},
	})
}

// New builds a viper instance with defaults, env overrides and, when cfgFile
// is set, that YAML file. Without cfgFile a park.yaml in the working
// directory is read if present.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("park")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.Archive.Timeout <= 0 {
		errs = append(errs, errors.New("archive.timeout must be positive"))
	}
	if c.Traffic.FlushInterval <= 0 {
		errs = append(errs, errors.New("traffic.flush_interval must be positive"))
	}
	if _, err := c.Facility.Layout(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Facility.RateTable(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Facility.Location(); err != nil {
		errs = append(errs, err)
	}
	if c.Facility.MinCharge < 0 {
		errs = append(errs, errors.New("facility.min_charge must not be negative"))
	}
	return errors.Join(errs...)
}

func (f FacilityConfig) currency() string {
	if f.Currency == "" {
		return types.DefaultCurrency
	}
	return strings.ToUpper(f.Currency)
}

// Layout expands the spot groups into individual spots.
func (f FacilityConfig) Layout() ([]spot.Spot, error) {
	var out []spot.Spot
	seen := make(map[int]bool)
	for i, g := range f.Spots {
		cat, err := spot.ParseCategory(g.Category)
		if err != nil {
			return nil, fmt.Errorf("facility.spots[%d]: %w %q", i, err, g.Category)
		}
		lo, hi, err := g.bounds()
		if err != nil {
			return nil, fmt.Errorf("facility.spots[%d]: %w", i, err)
		}
		for id := lo; id <= hi; id++ {
			if seen[id] {
				return nil, fmt.Errorf("facility.spots[%d]: %w: %d", i, spot.ErrDuplicateSpot, id)
			}
			seen[id] = true
			out = append(out, spot.Spot{ID: spot.ID(id), Category: cat})
		}
	}
	if len(out) == 0 {
		return nil, errors.New("facility.spots: inventory is empty")
	}
	return out, nil
}

func (g SpotGroup) bounds() (int, int, error) {
	if g.Range == "" {
		if g.ID <= 0 {
			return 0, 0, fmt.Errorf("%w: %d", spot.ErrInvalidSpotID, g.ID)
		}
		return g.ID, g.ID, nil
	}
	if g.ID != 0 {
		return 0, 0, errors.New("set either id or range, not both")
	}
	a, b, ok := strings.Cut(g.Range, "-")
	if !ok {
		b = a
	}
	lo, err := strconv.Atoi(strings.TrimSpace(a))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", g.Range, err)
	}
	hi, err := strconv.Atoi(strings.TrimSpace(b))
	if err != nil {
		return 0, 0, fmt.Errorf("range %q: %w", g.Range, err)
	}
	if lo <= 0 || hi < lo {
		return 0, 0, fmt.Errorf("range %q is empty or not positive", g.Range)
	}
	return lo, hi, nil
}

// RateTable converts the per-hour prices to minor units.
func (f FacilityConfig) RateTable() (billing.RateTable, error) {
	out := make(billing.RateTable, len(f.Rates))
	for name, v := range f.Rates {
		cat, err := spot.ParseCategory(name)
		if err != nil {
			return nil, fmt.Errorf("facility.rates: %w %q", err, name)
		}
		if v < 0 {
			return nil, fmt.Errorf("facility.rates.%s must not be negative", name)
		}
		out[cat] = types.FromMajor(v, f.currency())
	}
	for _, c := range spot.Categories {
		if _, ok := out[c]; !ok {
			return nil, fmt.Errorf("facility.rates: missing rate for %q", c)
		}
	}
	return out, nil
}

func (f FacilityConfig) MinChargeMoney() types.Money {
	return types.FromMajor(f.MinCharge, f.currency())
}

func (f FacilityConfig) Location() (*time.Location, error) {
	if f.Timezone == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(f.Timezone)
	if err != nil {
		return nil, fmt.Errorf("facility.timezone: %w", err)
	}
	return loc, nil
}
