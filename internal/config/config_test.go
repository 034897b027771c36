package config

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/XavierBriggs/Tyche/networks/hardhat"
	"github.com/XavierBriggs/Tyche/networks/rinkeby"
	"github.com/XavierBriggs/Tyche/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("TYCHE_NETWORK", "")
	t.Setenv("TYCHE_PAYOUT_SINK", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "hardhat", cfg.Network)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, SinkLedger, cfg.PayoutSink)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
	assert.Equal(t, 30*time.Minute, cfg.StuckAfter)
	assert.True(t, cfg.RedisEnabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoad_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TYCHE_HTTP_ADDR=:9999\nTYCHE_STUCK_AFTER=90s\n"), 0o600))

	// godotenv never overrides variables already present
	t.Setenv("TYCHE_HTTP_ADDR", "")
	os.Unsetenv("TYCHE_HTTP_ADDR")
	t.Setenv("TYCHE_STUCK_AFTER", "")
	os.Unsetenv("TYCHE_STUCK_AFTER")

	cfg, err := Load(envFile)
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, 90*time.Second, cfg.StuckAfter)
}

func TestLoad_MissingEnvFileIsIgnored(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	assert.NoError(t, err)
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{Network: "hardhat", PayoutSink: SinkLedger, EntryRateLimit: 1, EntryBurst: 1}
	}

	t.Run("development ok", func(t *testing.T) {
		c := base()
		assert.NoError(t, c.Validate())
	})

	t.Run("testnet needs coordinator", func(t *testing.T) {
		c := base()
		c.Network = "rinkeby"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TYCHE_VRF_COORDINATOR_URL")
		assert.Contains(t, err.Error(), "TYCHE_VRF_SUBSCRIPTION_ID")
		assert.Contains(t, err.Error(), "TYCHE_VRF_API_KEY")

		c.CoordinatorURL = "https://vrf.example"
		c.SubscriptionID = 7
		c.CoordinatorAPIKey = "k"
		assert.NoError(t, c.Validate())
	})

	t.Run("testnet needs callback key", func(t *testing.T) {
		c := base()
		c.Network = "rinkeby"
		c.CoordinatorURL = "https://vrf.example"
		c.SubscriptionID = 7
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "TYCHE_VRF_API_KEY")
		assert.NotContains(t, err.Error(), "TYCHE_VRF_COORDINATOR_URL")
	})

	t.Run("development runs without callback key", func(t *testing.T) {
		c := base()
		c.Network = "localhost"
		c.CoordinatorAPIKey = ""
		assert.NoError(t, c.Validate())
	})

	t.Run("wallet needs url", func(t *testing.T) {
		c := base()
		c.PayoutSink = SinkWallet
		assert.Error(t, c.Validate())
		c.WalletURL = "https://wallet.example"
		assert.NoError(t, c.Validate())
	})

	t.Run("unknown values", func(t *testing.T) {
		c := base()
		c.Network = "mainnet"
		c.PayoutSink = "carrier-pigeon"
		err := c.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), `unknown network "mainnet"`)
		assert.Contains(t, err.Error(), `unknown payout sink "carrier-pigeon"`)
	})
}

func TestLoadRafflesFromPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "raffles.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
raffles:
  - name: hourly
    entrance_fee: "0.05"
    interval: 1h
  - name: fast
    callback_gas_limit: 100000
`), 0o600))

	cfgs, err := LoadRafflesFromPath(path, hardhat.NewModule())
	require.NoError(t, err)
	require.Len(t, cfgs, 2)

	assert.Equal(t, "hourly", cfgs[0].Name)
	assert.True(t, cfgs[0].EntranceFee.Equal(testutil.Amount("0.05")))
	assert.Equal(t, time.Hour, cfgs[0].Interval)
	assert.Equal(t, uint32(500_000), cfgs[0].CallbackGasLimit)

	// network presets fill the gaps
	assert.Equal(t, "fast", cfgs[1].Name)
	assert.True(t, cfgs[1].EntranceFee.Equal(testutil.Amount("0.01")))
	assert.Equal(t, 30*time.Second, cfgs[1].Interval)
	assert.Equal(t, uint32(100_000), cfgs[1].CallbackGasLimit)
	assert.Equal(t, hardhat.DefaultConfig().Raffle.GasLane, cfgs[1].KeyHash)
}

func TestLoadRafflesFromPath_Errors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
		return p
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{"bad yaml", "raffles: [", "failed to parse raffles config"},
		{"empty", "raffles: []", "defines no raffles"},
		{"duplicate", "raffles:\n  - name: a\n  - name: a\n", "defined twice"},
		{"bad fee", "raffles:\n  - name: a\n    entrance_fee: lots\n", "invalid entrance_fee"},
		{"zero fee", "raffles:\n  - name: a\n    entrance_fee: \"0\"\n", "entrance fee must be > 0"},
		{"gas over cap", "raffles:\n  - name: a\n    callback_gas_limit: 3000000\n", "callback gas limit"},
	}

	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := write(fmt.Sprintf("case%d.yaml", i), tt.body)
			_, err := LoadRafflesFromPath(path, hardhat.NewModule())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRaffles_FallsBackWhenMissing(t *testing.T) {
	net := rinkeby.NewModule(42)

	cfgs, err := LoadRaffles(filepath.Join(t.TempDir(), "nope.yaml"), net)
	require.NoError(t, err)
	require.Len(t, cfgs, 1)
	assert.Equal(t, "default", cfgs[0].Name)
	assert.Equal(t, uint64(42), cfgs[0].SubscriptionID)
	assert.NoError(t, cfgs[0].Validate())
}

func TestLoadRaffles_ShippedFile(t *testing.T) {
	cfgs, err := LoadRaffles(filepath.Join("..", "..", "config", "raffles.yaml"), hardhat.NewModule())
	require.NoError(t, err)
	require.Len(t, cfgs, 2)
	assert.Equal(t, "hourly", cfgs[0].Name)
	assert.Equal(t, 24*time.Hour, cfgs[1].Interval)
}
