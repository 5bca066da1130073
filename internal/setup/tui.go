package setup

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"gopkg.in/yaml.v3"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

type configYAML struct {
	Platform         string        `yaml:"platform"`
	RPCURL           string        `yaml:"rpc_url,omitempty"`
	ContractAddress  string        `yaml:"contract_address,omitempty"`
	CollateralToken  string        `yaml:"collateral_token,omitempty"`
	DebtToken        string        `yaml:"debt_token,omitempty"`
	Account          string        `yaml:"account"`
	PositionInterval time.Duration `yaml:"position_interval"`
	DerivedInterval  time.Duration `yaml:"derived_interval"`
	PriceInterval    time.Duration `yaml:"price_interval"`
	WebAddr          string        `yaml:"web_addr,omitempty"`
}

// RunTUI launches the terminal configuration wizard.
func RunTUI() error {
	var (
		platform            string
		rpcURL              string
		contractAddress     string
		collateralToken     string
		debtToken           string
		account             string
		positionIntervalStr string
		derivedIntervalStr  string
		priceIntervalStr    string
		webAddr             string
		confirm             bool
	)

	// defaults
	positionIntervalStr = "15s"
	derivedIntervalStr = "30s"
	priceIntervalStr = "1m"
	webAddr = ":8080"

	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(headerStyle.Render("COLLAT CONFIG WIZARD"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Let's point the tracker at your position.\n"))

	fmt.Println(stepStyle.Render("STEP 1: PLATFORM"))
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select ledger platform").
				Options(
					huh.NewOption("EVM (json-rpc)", "evm"),
					huh.NewOption("Simulate (in-memory)", "simulate"),
				).
				Value(&platform),
		),
	).Run()
	if err != nil {
		return err
	}

	if platform == "evm" {
		fmt.Print("\033[H\033[2J")
		fmt.Println(headerStyle.Render("COLLAT CONFIG WIZARD"))
		fmt.Println(stepStyle.Render("STEP 2: LEDGER ENDPOINT"))
		err = huh.NewForm(
			huh.NewGroup(
				huh.NewInput().Title("JSON-RPC endpoint URL").Value(&rpcURL),
				huh.NewInput().Title("Lending protocol contract address").Value(&contractAddress),
				huh.NewInput().Title("Collateral token address").Value(&collateralToken),
				huh.NewInput().Title("Debt token address").Value(&debtToken),
			),
		).Run()
		if err != nil {
			return err
		}
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("COLLAT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 3: ACCOUNT & CADENCE"))
	err = huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Tracked account address").Value(&account),
			huh.NewInput().Title("Position refresh interval").Value(&positionIntervalStr),
			huh.NewInput().Title("Derived fields refresh interval").Value(&derivedIntervalStr),
			huh.NewInput().Title("Oracle price refresh interval").Value(&priceIntervalStr),
			huh.NewInput().Title("Dashboard listen address (empty disables)").Value(&webAddr),
		),
	).Run()
	if err != nil {
		return err
	}

	positionInterval, err := time.ParseDuration(positionIntervalStr)
	if err != nil {
		return fmt.Errorf("invalid position interval: %w", err)
	}
	derivedInterval, err := time.ParseDuration(derivedIntervalStr)
	if err != nil {
		return fmt.Errorf("invalid derived interval: %w", err)
	}
	priceInterval, err := time.ParseDuration(priceIntervalStr)
	if err != nil {
		return fmt.Errorf("invalid price interval: %w", err)
	}

	conf := configYAML{
		Platform:         platform,
		RPCURL:           rpcURL,
		ContractAddress:  contractAddress,
		CollateralToken:  collateralToken,
		DebtToken:        debtToken,
		Account:          account,
		PositionInterval: positionInterval,
		DerivedInterval:  derivedInterval,
		PriceInterval:    priceInterval,
		WebAddr:          webAddr,
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("COLLAT CONFIG WIZARD"))
	fmt.Println(stepStyle.Render("STEP 4: CONFIRM"))
	out, err := yaml.Marshal(conf)
	if err != nil {
		return err
	}
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render(string(out)))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Write config.yaml?").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		fmt.Println("aborted, nothing written")
		return nil
	}

	if err := os.WriteFile("config.yaml", out, 0o644); err != nil {
		return err
	}
	fmt.Println(stepStyle.Render("config.yaml written — run: collat --config config.yaml"))
	return nil
}
