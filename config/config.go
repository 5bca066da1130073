package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vadiminshakov/collat/internal/domain"
)

// Config holds the runtime configuration of the position tracker.
type Config struct {
	Platform         string
	RPCURL           string
	ContractAddress  string
	CollateralToken  string
	DebtToken        string
	Account          domain.Account
	PositionInterval time.Duration
	DerivedInterval  time.Duration
	PriceInterval    time.Duration
	WebAddr          string
	TLSDomains       []string
	WALDir           string
}

type configTmp struct {
	Platform         string        `yaml:"platform"`
	RPCURL           string        `yaml:"rpc_url,omitempty"`
	ContractAddress  string        `yaml:"contract_address,omitempty"`
	CollateralToken  string        `yaml:"collateral_token,omitempty"`
	DebtToken        string        `yaml:"debt_token,omitempty"`
	Account          string        `yaml:"account"`
	PositionInterval time.Duration `yaml:"position_interval,omitempty"`
	DerivedInterval  time.Duration `yaml:"derived_interval,omitempty"`
	PriceInterval    time.Duration `yaml:"price_interval,omitempty"`
	WebAddr          string        `yaml:"web_addr,omitempty"`
	TLSDomains       []string      `yaml:"tls_domains,omitempty"`
	WALDir           string        `yaml:"wal_dir,omitempty"`
}

// Get loads configuration from the yaml file given by --config, or
// from CLI flags when no file is provided.
func Get() (Config, error) {
	configPath := flag.String("config", "", "path to yaml config")
	platform := flag.String("platform", "simulate", "ledger platform: evm or simulate")
	rpcURL := flag.String("rpc", "", "json-rpc endpoint url")
	contract := flag.String("contract", "", "lending protocol contract address")
	collateralToken := flag.String("collateral-token", "", "collateral token contract address")
	debtToken := flag.String("debt-token", "", "debt token contract address")
	account := flag.String("account", "", "tracked account address")
	positionInterval := flag.Duration("position-interval", 15*time.Second, "raw position refresh interval")
	derivedInterval := flag.Duration("derived-interval", 30*time.Second, "derived fields refresh interval")
	priceInterval := flag.Duration("price-interval", time.Minute, "oracle price refresh interval")
	webAddr := flag.String("web", ":8080", "dashboard listen address, empty disables")
	walDir := flag.String("wal-dir", "", "snapshot WAL directory")
	flag.Parse()

	if *configPath != "" {
		return getYaml(*configPath)
	}

	conf := Config{
		Platform:         *platform,
		RPCURL:           *rpcURL,
		ContractAddress:  *contract,
		CollateralToken:  *collateralToken,
		DebtToken:        *debtToken,
		Account:          domain.Account(strings.TrimSpace(*account)),
		PositionInterval: *positionInterval,
		DerivedInterval:  *derivedInterval,
		PriceInterval:    *priceInterval,
		WebAddr:          *webAddr,
		WALDir:           *walDir,
	}
	return conf, conf.validate()
}

func getYaml(path string) (Config, error) {
	var tmp configTmp

	f, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(f, &tmp); err != nil {
		return Config{}, err
	}

	conf := Config{
		Platform:         tmp.Platform,
		RPCURL:           tmp.RPCURL,
		ContractAddress:  tmp.ContractAddress,
		CollateralToken:  tmp.CollateralToken,
		DebtToken:        tmp.DebtToken,
		Account:          domain.Account(strings.TrimSpace(tmp.Account)),
		PositionInterval: tmp.PositionInterval,
		DerivedInterval:  tmp.DerivedInterval,
		PriceInterval:    tmp.PriceInterval,
		WebAddr:          tmp.WebAddr,
		TLSDomains:       tmp.TLSDomains,
		WALDir:           tmp.WALDir,
	}

	if conf.PositionInterval == 0 {
		conf.PositionInterval = 15 * time.Second
	}
	if conf.DerivedInterval == 0 {
		conf.DerivedInterval = 30 * time.Second
	}
	if conf.PriceInterval == 0 {
		conf.PriceInterval = time.Minute
	}

	return conf, conf.validate()
}

func (c Config) validate() error {
	switch c.Platform {
	case "evm":
		if c.RPCURL == "" {
			return fmt.Errorf("'rpc_url' is required for the evm platform")
		}
		if c.ContractAddress == "" {
			return fmt.Errorf("'contract_address' is required for the evm platform")
		}
		if c.Account.IsZero() {
			return fmt.Errorf("'account' is required for the evm platform")
		}
	case "simulate":
		// account optional: the tracker starts with an empty snapshot
	default:
		return fmt.Errorf("unsupported platform: %s", c.Platform)
	}

	if c.PositionInterval <= 0 || c.DerivedInterval <= 0 || c.PriceInterval <= 0 {
		return fmt.Errorf("refresh intervals must be positive")
	}
	return nil
}
