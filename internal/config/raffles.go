package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/XavierBriggs/Tyche/internal/raffle"
	"github.com/XavierBriggs/Tyche/pkg/contracts"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// RafflesFile is the layout of config/raffles.yaml
type RafflesFile struct {
	Raffles []RaffleSettings `yaml:"raffles"`
}

// RaffleSettings overrides network defaults for one raffle; zero values keep the default
type RaffleSettings struct {
	Name             string        `yaml:"name"`
	EntranceFee      string        `yaml:"entrance_fee"`
	Interval         time.Duration `yaml:"interval"`
	KeyHash          string        `yaml:"key_hash"`
	SubscriptionID   uint64        `yaml:"subscription_id"`
	CallbackGasLimit uint32        `yaml:"callback_gas_limit"`
}

// LoadRaffles loads raffle definitions, falling back to the network defaults if path does not exist
func LoadRaffles(path string, network contracts.NetworkProfile) ([]raffle.Config, error) {
	cfgs, err := LoadRafflesFromPath(path, network)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultRaffles(network), nil
	}
	return cfgs, err
}

// LoadRafflesFromPath loads and validates raffle definitions from a specific path
func LoadRafflesFromPath(path string, network contracts.NetworkProfile) ([]raffle.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read raffles config: %w", err)
	}

	var file RafflesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse raffles config: %w", err)
	}
	if len(file.Raffles) == 0 {
		return nil, fmt.Errorf("raffles config %s defines no raffles", path)
	}

	seen := make(map[string]bool, len(file.Raffles))
	cfgs := make([]raffle.Config, 0, len(file.Raffles))
	for _, s := range file.Raffles {
		if seen[s.Name] {
			return nil, fmt.Errorf("raffle %s is defined twice", s.Name)
		}
		seen[s.Name] = true

		cfg, err := s.apply(networkDefaults(s.Name, network))
		if err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}

	return cfgs, nil
}

// DefaultRaffles returns a single raffle built from the network presets
func DefaultRaffles(network contracts.NetworkProfile) []raffle.Config {
	return []raffle.Config{networkDefaults("default", network)}
}

func networkDefaults(name string, network contracts.NetworkProfile) raffle.Config {
	return raffle.Config{
		Name:             name,
		EntranceFee:      network.GetEntranceFee(),
		Interval:         network.GetInterval(),
		KeyHash:          network.GetGasLane(),
		SubscriptionID:   network.GetSubscriptionID(),
		CallbackGasLimit: network.GetCallbackGasLimit(),
	}
}

func (s RaffleSettings) apply(cfg raffle.Config) (raffle.Config, error) {
	if s.EntranceFee != "" {
		fee, err := decimal.NewFromString(s.EntranceFee)
		if err != nil {
			return cfg, fmt.Errorf("raffle %s: invalid entrance_fee %q: %w", s.Name, s.EntranceFee, err)
		}
		cfg.EntranceFee = fee
	}
	if s.Interval != 0 {
		cfg.Interval = s.Interval
	}
	if s.KeyHash != "" {
		cfg.KeyHash = s.KeyHash
	}
	if s.SubscriptionID != 0 {
		cfg.SubscriptionID = s.SubscriptionID
	}
	if s.CallbackGasLimit != 0 {
		cfg.CallbackGasLimit = s.CallbackGasLimit
	}
	return cfg, nil
}
