// Package config loads agent and simulation settings from YAML.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/booktrader/core"
	"github.com/hupe1980/booktrader/logging"
	"github.com/hupe1980/booktrader/valuation"
)

// Config is the complete settings document.
type Config struct {
	Agent       AgentConfig        `yaml:"agent"`
	Negotiation NegotiationConfig  `yaml:"negotiation"`
	Valuation   ValuationConfig    `yaml:"valuation"`
	Catalog     map[string]float64 `yaml:"catalog"`
	Logging     LoggingConfig      `yaml:"logging"`
	Ledger      LedgerConfig       `yaml:"ledger"`
	Hub         HubConfig          `yaml:"hub"`
	Scenario    []AgentSeed        `yaml:"scenario"`
}

// AgentConfig identifies a single trader process.
type AgentConfig struct {
	ID    string   `yaml:"id"`
	Roles []string `yaml:"roles"`
}

// NegotiationConfig holds protocol timings.
type NegotiationConfig struct {
	ScanInterval        time.Duration `yaml:"scan_interval"`
	ResponseTimeout     time.Duration `yaml:"response_timeout"`
	DecisionTimeout     time.Duration `yaml:"decision_timeout"`
	ConfirmationTimeout time.Duration `yaml:"confirmation_timeout"`
	SettlementTimeout   time.Duration `yaml:"settlement_timeout"`
}

// ValuationConfig holds the valuation constants.
type ValuationConfig struct {
	SellDiscount float64 `yaml:"sell_discount"`
	BuyMarkdown  float64 `yaml:"buy_markdown"`
	MaxSellBonus int     `yaml:"max_sell_bonus"`
	BuyDivisor   float64 `yaml:"buy_divisor"`
}

// LoggingConfig selects level and format of the process logger.
type LoggingConfig struct {
	Level     string `yaml:"level"`
	Format    string `yaml:"format"`
	AddSource bool   `yaml:"add_source"`
}

// LedgerConfig selects the settlement ledger backend.
type LedgerConfig struct {
	Backend string `yaml:"backend"` // memory or sqlite
	Path    string `yaml:"path"`
}

// HubConfig locates the websocket hub.
type HubConfig struct {
	Addr string `yaml:"addr"` // listen address for the hub command
	URL  string `yaml:"url"`  // dial URL for the agent command
}

// GoalSeed is a goal in a scenario.
type GoalSeed struct {
	Book  string  `yaml:"book"`
	Value float64 `yaml:"value"`
}

// AgentSeed is the opening account of one scenario agent.
type AgentSeed struct {
	ID    string     `yaml:"id"`
	Money float64    `yaml:"money"`
	Books []string   `yaml:"books"`
	Goals []GoalSeed `yaml:"goals"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Agent: AgentConfig{Roles: []string{core.RoleTrading}},
		Negotiation: NegotiationConfig{
			ScanInterval:        time.Second,
			ResponseTimeout:     5 * time.Second,
			DecisionTimeout:     10 * time.Second,
			ConfirmationTimeout: 10 * time.Second,
			SettlementTimeout:   5 * time.Second,
		},
		Valuation: ValuationConfig{SellDiscount: 20, BuyMarkdown: 10, MaxSellBonus: 10, BuyDivisor: 10},
		Catalog: map[string]float64{
			"Dune":        100,
			"Foundation":  50,
			"Emma":        35,
			"Ulysses":     120,
			"Neuromancer": 60,
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Ledger:  LedgerConfig{Backend: "memory"},
		Hub:     HubConfig{Addr: ":8080", URL: "ws://localhost:8080/ws"},
	}
}

// Load reads path and overlays it on Default. The result is validated.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

// Decode reads a YAML document from r and overlays it on Default. A
// catalog in the document replaces the default catalog.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	defaultCatalog := cfg.Catalog
	cfg.Catalog = nil

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if cfg.Catalog == nil {
		cfg.Catalog = defaultCatalog
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the agents cannot run with.
func (c Config) Validate() error {
	var errs []error
	n := c.Negotiation
	for name, d := range map[string]time.Duration{
		"scan_interval":        n.ScanInterval,
		"response_timeout":     n.ResponseTimeout,
		"decision_timeout":     n.DecisionTimeout,
		"confirmation_timeout": n.ConfirmationTimeout,
		"settlement_timeout":   n.SettlementTimeout,
	} {
		if d <= 0 {
			errs = append(errs, fmt.Errorf("negotiation.%s must be positive", name))
		}
	}
	if c.Valuation.BuyDivisor <= 0 {
		errs = append(errs, errors.New("valuation.buy_divisor must be positive"))
	}
	if c.Valuation.MaxSellBonus < 1 {
		errs = append(errs, errors.New("valuation.max_sell_bonus must be at least 1"))
	}
	if len(c.Catalog) == 0 {
		errs = append(errs, errors.New("catalog is empty"))
	}
	for name, price := range c.Catalog {
		if price < 0 {
			errs = append(errs, fmt.Errorf("catalog: negative price for %q", name))
		}
	}
	switch c.Ledger.Backend {
	case "memory":
	case "sqlite":
		if c.Ledger.Path == "" {
			errs = append(errs, errors.New("ledger.path is required for the sqlite backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("ledger.backend %q is not one of memory, sqlite", c.Ledger.Backend))
	}
	if _, err := logging.ParseLevel(c.Logging.Level); err != nil {
		errs = append(errs, fmt.Errorf("logging.level: %w", err))
	}

	seen := make(map[string]bool)
	for i, a := range c.Scenario {
		if a.ID == "" {
			errs = append(errs, fmt.Errorf("scenario[%d]: empty id", i))
		} else if seen[a.ID] {
			errs = append(errs, fmt.Errorf("scenario[%d]: duplicate id %q", i, a.ID))
		}
		seen[a.ID] = true
		if a.Money < 0 {
			errs = append(errs, fmt.Errorf("scenario %q: negative money", a.ID))
		}
		for _, b := range a.Books {
			if _, ok := c.Catalog[b]; !ok {
				errs = append(errs, fmt.Errorf("scenario %q: book %q not in catalog", a.ID, b))
			}
		}
		for _, g := range a.Goals {
			if _, ok := c.Catalog[g.Book]; !ok {
				errs = append(errs, fmt.Errorf("scenario %q: goal %q not in catalog", a.ID, g.Book))
			}
		}
	}
	return errors.Join(errs...)
}

// Prices returns the catalog as decimal prices.
func (c Config) Prices() core.Catalog {
	out := make(core.Catalog, len(c.Catalog))
	for name, p := range c.Catalog {
		out[name] = decimal.NewFromFloat(p)
	}
	return out
}

// ValuationConfig converts the valuation constants.
func (c Config) ValuationConfig() valuation.Config {
	return valuation.Config{
		SellDiscount: decimal.NewFromFloat(c.Valuation.SellDiscount),
		BuyMarkdown:  decimal.NewFromFloat(c.Valuation.BuyMarkdown),
		BuyDivisor:   decimal.NewFromFloat(c.Valuation.BuyDivisor),
		MaxSellBonus: c.Valuation.MaxSellBonus,
	}
}

// Logger builds the process logger.
func (c Config) Logger(w io.Writer) *logging.TraderLogger {
	level, err := logging.ParseLevel(c.Logging.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	return logging.NewLogger(&logging.LoggerConfig{
		Level:     level,
		Format:    c.Logging.Format,
		Output:    w,
		AddSource: c.Logging.AddSource,
	})
}

// Snapshot converts the seed to an opening snapshot. Books receive their
// instance ids from the ledger.
func (s AgentSeed) Snapshot() core.Snapshot {
	snap := core.Snapshot{AgentID: s.ID, Money: decimal.NewFromFloat(s.Money)}
	for _, b := range s.Books {
		snap.Inventory = append(snap.Inventory, core.Book{Name: b})
	}
	for _, g := range s.Goals {
		snap.Goals = append(snap.Goals, core.Goal{Book: g.Book, Value: decimal.NewFromFloat(g.Value)})
	}
	return snap
}
