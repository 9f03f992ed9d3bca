// Package config loads the statarb configuration file.
//
// Values come from a YAML file, then STATARB_* environment variables
// (dots become underscores, e.g. STATARB_BACKTEST_COST_RATE), then defaults.
// Environment variables reach scalar keys only; pairs, signal documents and
// optimizer ranges come from the file.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/yourusername/quantlink-statarb/pkg/backtest"
	"github.com/yourusername/quantlink-statarb/pkg/logging"
	"github.com/yourusername/quantlink-statarb/pkg/signal"
	"github.com/yourusername/quantlink-statarb/pkg/spread"
	"github.com/yourusername/quantlink-statarb/pkg/stats"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "STATARB"

// Config 回测系统配置
type Config struct {
	Log          logging.Config            `yaml:"log" mapstructure:"log"`
	Pairs        []PairConfig              `yaml:"pairs" mapstructure:"pairs"`
	Spread       spread.Options            `yaml:"spread" mapstructure:"spread"`
	ZScoreWindow int                       `yaml:"zscore_window" mapstructure:"zscore_window"`
	Signals      backtest.SignalSet        `yaml:"signals" mapstructure:"signals"`
	Backtest     backtest.SimulationConfig `yaml:"backtest" mapstructure:"backtest"`
	// SingleAsset trades asset 1 only.
	SingleAsset bool            `yaml:"single_asset" mapstructure:"single_asset"`
	Optimizer   OptimizerConfig `yaml:"optimizer" mapstructure:"optimizer"`
	Output      OutputConfig    `yaml:"output" mapstructure:"output"`
	Engine      EngineConfig    `yaml:"engine" mapstructure:"engine"`
}

// PairConfig names one pair and where its prices live.
type PairConfig struct {
	Name                string `yaml:"name" mapstructure:"name"`
	backtest.PairSource `yaml:",inline" mapstructure:",squash"`
}

// OptimizerConfig 参数优化配置
type OptimizerConfig struct {
	Goal    string                `yaml:"goal" mapstructure:"goal"`
	Workers int                   `yaml:"workers" mapstructure:"workers"`
	TopN    int                   `yaml:"top_n" mapstructure:"top_n"`
	Ranges  []backtest.ParamRange `yaml:"ranges" mapstructure:"ranges"`
}

// OutputConfig 输出配置
type OutputConfig struct {
	Dir       string   `yaml:"dir" mapstructure:"dir"`
	Formats   []string `yaml:"formats" mapstructure:"formats"`
	Precision int32    `yaml:"precision" mapstructure:"precision"`
}

// EngineConfig holds the network endpoints of the commands.
type EngineConfig struct {
	NATSURL     string `yaml:"nats_url" mapstructure:"nats_url"`
	NATSSubject string `yaml:"nats_subject" mapstructure:"nats_subject"`
	GRPCAddr    string `yaml:"grpc_addr" mapstructure:"grpc_addr"`
	MetricsAddr string `yaml:"metrics_addr" mapstructure:"metrics_addr"`
	Workers     int    `yaml:"workers" mapstructure:"workers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("spread.type", string(spread.SpreadTypeDifference))
	v.SetDefault("spread.hedge_ratio", 1.0)
	v.SetDefault("spread.estimate_hedge_ratio", false)
	v.SetDefault("zscore_window", backtest.DefaultZScoreWindow)
	v.SetDefault("single_asset", false)

	v.SetDefault("backtest.cost_rate", 0.0)
	v.SetDefault("backtest.periods_per_year", backtest.DefaultPeriodsPerYear)

	v.SetDefault("optimizer.goal", string(backtest.GoalSharpeRatio))
	v.SetDefault("optimizer.workers", 4)
	v.SetDefault("optimizer.top_n", 5)

	v.SetDefault("output.dir", "./backtest_results")
	v.SetDefault("output.formats", []string{backtest.FormatYAML, backtest.FormatMarkdown})
	v.SetDefault("output.precision", backtest.DefaultPrecision)

	v.SetDefault("engine.nats_url", "")
	v.SetDefault("engine.nats_subject", "statarb.reports")
	v.SetDefault("engine.grpc_addr", ":50061")
	v.SetDefault("engine.metrics_addr", "")
	v.SetDefault("engine.workers", 4)
}

// optionalEnvKeys have no default, so AutomaticEnv alone does not see them
// unless the file sets them too.
var optionalEnvKeys = []string{
	"backtest.weight1",
	"backtest.weight2",
}

func bindOptionalEnv(v *viper.Viper) {
	for _, key := range optionalEnvKeys {
		_ = v.BindEnv(key, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")))
	}
}

// Load reads path (or ./config.yaml, ./config/config.yaml when empty),
// applies environment overrides and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindOptionalEnv(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || path != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.TextUnmarshallerHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate applies defaults left open by the file and rejects bad values.
func (c *Config) Validate() error {
	if _, err := logging.NewLogger(c.Log, nil); err != nil {
		return fmt.Errorf("%w: log: %v", stats.ErrConfiguration, err)
	}

	names := make(map[string]bool, len(c.Pairs))
	for i := range c.Pairs {
		p := &c.Pairs[i]
		if p.Name == "" {
			p.Name = fmt.Sprintf("%s/%s", p.Column1, p.Column2)
		}
		if p.Path == "" {
			return fmt.Errorf("%w: pair %s has no data path", stats.ErrConfiguration, p.Name)
		}
		if p.Column1 == "" || p.Column2 == "" {
			return fmt.Errorf("%w: pair %s needs column1 and column2", stats.ErrConfiguration, p.Name)
		}
		if names[p.Name] {
			return fmt.Errorf("%w: duplicate pair %s", stats.ErrConfiguration, p.Name)
		}
		names[p.Name] = true
	}

	spreadType, err := spread.ParseSpreadType(string(c.Spread.Type))
	if err != nil {
		return fmt.Errorf("%w: %v", stats.ErrParameter, err)
	}
	c.Spread.Type = spreadType
	if !stats.IsFinite(c.Spread.HedgeRatio) {
		return fmt.Errorf("%w: hedge ratio is not finite", stats.ErrParameter)
	}

	if c.ZScoreWindow == 0 {
		c.ZScoreWindow = backtest.DefaultZScoreWindow
	}
	if c.ZScoreWindow < 2 {
		return fmt.Errorf("%w: zscore_window must be at least 2, got %d", stats.ErrParameter, c.ZScoreWindow)
	}

	if c.Signals.Long == nil && c.Signals.Short == nil {
		return fmt.Errorf("%w: signals need a long or a short document", stats.ErrConfiguration)
	}
	if err := checkDocument(c.Signals.Long, signal.Long); err != nil {
		return err
	}
	if err := checkDocument(c.Signals.Short, signal.Short); err != nil {
		return err
	}

	if !stats.IsFinite(c.Backtest.CostRate) || c.Backtest.CostRate < 0 {
		return fmt.Errorf("%w: cost_rate must be non-negative, got %v", stats.ErrParameter, c.Backtest.CostRate)
	}
	if c.Backtest.PeriodsPerYear < 0 {
		return fmt.Errorf("%w: periods_per_year must be non-negative", stats.ErrParameter)
	}

	if _, err := backtest.ParseGoal(c.Optimizer.Goal); err != nil {
		return err
	}
	if c.Optimizer.Workers <= 0 {
		c.Optimizer.Workers = 1
	}

	if c.Output.Dir == "" {
		c.Output.Dir = "./backtest_results"
	}
	for _, f := range c.Output.Formats {
		switch strings.ToLower(f) {
		case backtest.FormatYAML, "yml", backtest.FormatJSON, backtest.FormatMarkdown, "md", backtest.FormatCSV:
		default:
			return fmt.Errorf("%w: unknown output format %q", stats.ErrConfiguration, f)
		}
	}
	if c.Output.Precision < 0 {
		return fmt.Errorf("%w: precision must be non-negative", stats.ErrParameter)
	}

	if c.Engine.Workers <= 0 {
		c.Engine.Workers = 1
	}
	return nil
}

// checkDocument fills in the direction of a section and checks the document
// builds an engine.
func checkDocument(doc *signal.Document, want signal.Direction) error {
	if doc == nil {
		return nil
	}
	if doc.SignalType == "" {
		doc.SignalType = want
	}
	if doc.SignalType != want {
		return fmt.Errorf("%w: %s section holds a %s document", stats.ErrConfiguration, want, doc.SignalType)
	}
	if _, err := doc.Engine(); err != nil {
		return fmt.Errorf("%s signal: %w", want, err)
	}
	return nil
}

// Pair returns the pair called name.
func (c *Config) Pair(name string) (PairConfig, bool) {
	for _, p := range c.Pairs {
		if p.Name == name {
			return p, true
		}
	}
	return PairConfig{}, false
}

// RunSpec builds the backtest for one pair from the shared sections.
// The signal documents are cloned so runs never share thresholds.
func (c *Config) RunSpec(pair PairConfig, prices *backtest.PriceData) backtest.RunSpec {
	return backtest.RunSpec{
		Pair:         pair.Name,
		Prices:       prices,
		Spread:       c.Spread,
		ZScoreWindow: c.ZScoreWindow,
		Long:         c.Signals.Long.Clone(),
		Short:        c.Signals.Short.Clone(),
		Simulation:   c.Backtest,
		SingleAsset:  c.SingleAsset,
		Precision:    c.Output.Precision,
	}
}

// SaveConfig writes cfg as YAML.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
