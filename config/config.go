package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"nengajo/core"
	"nengajo/crypto"
	"nengajo/native/nengajo"
)

const (
	DefaultChainID     = uint64(31337)
	DefaultEnvironment = "local"

	// Env vars consulted by Load.
	EnvEnvironment = "NENGAJO_ENV"
	EnvRPCToken    = "NENGAJO_RPC_TOKEN"
	EnvKeyPass     = "NENGAJO_KEY_PASS"
	EnvJWTSecret   = "NENGAJO_RPC_JWT_SECRET"
)

var errMissingPassphrase = errors.New("config: keystore passphrase required to create the admin key")

type Config struct {
	RPCAddress        string      `toml:"RPCAddress"`
	DataDir           string      `toml:"DataDir"`
	ChainID           uint64      `toml:"ChainID"`
	Environment       string      `toml:"Environment"`
	AdminKeystorePath string      `toml:"AdminKeystorePath"`
	Drop              Drop        `toml:"Drop"`
	GatingToken       GatingToken `toml:"GatingToken"`
	Logging           Logging     `toml:"Logging"`
	Telemetry         Telemetry   `toml:"Telemetry"`
	RPC               RPC         `toml:"RPC"`
	Indexer           Indexer     `toml:"Indexer"`
}

type loadOptions struct {
	passphrase string
}

// LoadOption customises Load.
type LoadOption func(*loadOptions)

// WithKeystorePassphrase supplies the passphrase used to encrypt a freshly
// generated admin key when no configuration exists yet.
func WithKeystorePassphrase(passphrase string) LoadOption {
	return func(o *loadOptions) { o.passphrase = passphrase }
}

// Load loads the configuration from the given path. A missing file is
// replaced by a default configuration with a new admin keystore.
func Load(path string, opts ...LoadOption) (*Config, error) {
	options := loadOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path, options.passphrase)
	}

	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config file %s has unknown key %q", path, undecoded[0].String())
	}
	cfg.applyDefaults()
	if env := strings.TrimSpace(os.Getenv(EnvEnvironment)); env != "" {
		cfg.Environment = env
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.RPCAddress) == "" {
		c.RPCAddress = ":8080"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./nengajo-data"
	}
	if c.ChainID == 0 {
		c.ChainID = DefaultChainID
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = DefaultEnvironment
	}
	if strings.TrimSpace(c.GatingToken.Symbol) == "" {
		c.GatingToken.Symbol = "HNK"
	}
	if strings.TrimSpace(c.GatingToken.Name) == "" {
		c.GatingToken.Name = c.GatingToken.Symbol
	}
	if strings.TrimSpace(c.GatingToken.MinMinterBalance) == "" {
		c.GatingToken.MinMinterBalance = "10"
	}
	if strings.TrimSpace(c.GatingToken.FeeBase) == "" {
		c.GatingToken.FeeBase = nengajo.DefaultFeeBase.String()
	}
	if strings.TrimSpace(c.GatingToken.FeePerCopy) == "" {
		c.GatingToken.FeePerCopy = nengajo.DefaultFeePerCopy.String()
	}
	if strings.TrimSpace(c.Drop.FeeRecipient) == "" {
		c.Drop.FeeRecipient = c.Drop.InitialAdmin
	}
	if c.RPC.RequestsPerMinute == 0 {
		c.RPC.RequestsPerMinute = 120
	}
	if c.RPC.Burst == 0 {
		c.RPC.Burst = 20
	}
	if c.RPC.ReadTimeoutSeconds == 0 {
		c.RPC.ReadTimeoutSeconds = 10
	}
	if c.RPC.WriteTimeoutSeconds == 0 {
		c.RPC.WriteTimeoutSeconds = 10
	}
	if strings.TrimSpace(c.RPC.AuthTokenEnv) == "" {
		c.RPC.AuthTokenEnv = EnvRPCToken
	}
	if strings.TrimSpace(c.RPC.JWTSecretEnv) == "" {
		c.RPC.JWTSecretEnv = EnvJWTSecret
	}
}

// Genesis converts the drop and token sections into node genesis parameters.
func (c *Config) Genesis() (core.Genesis, error) {
	admin, err := crypto.ParseAddress(c.Drop.InitialAdmin)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("drop.InitialAdmin: %w", err)
	}
	recipient, err := crypto.ParseAddress(c.Drop.FeeRecipient)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("drop.FeeRecipient: %w", err)
	}
	minBalance, err := parseAmount(c.GatingToken.MinMinterBalance)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("gatingToken.MinMinterBalance: %w", err)
	}
	feeBase, err := parseAmount(c.GatingToken.FeeBase)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("gatingToken.FeeBase: %w", err)
	}
	feePerCopy, err := parseAmount(c.GatingToken.FeePerCopy)
	if err != nil {
		return core.Genesis{}, fmt.Errorf("gatingToken.FeePerCopy: %w", err)
	}
	g := core.Genesis{
		ChainID: c.ChainID,
		Drop: nengajo.Params{
			Name:             c.Drop.Name,
			Symbol:           c.Drop.Symbol,
			Window:           nengajo.Window{OpenAt: c.Drop.OpenAt, CloseAt: c.Drop.CloseAt},
			Fees:             nengajo.FeeSchedule{Base: feeBase, PerCopy: feePerCopy},
			MinMinterBalance: minBalance,
			FeeRecipient:     recipient,
		},
		Token: core.TokenSpec{
			Symbol:   c.GatingToken.Symbol,
			Name:     c.GatingToken.Name,
			Decimals: c.GatingToken.Decimals,
		},
		Admin: admin,
	}
	for i, alloc := range c.GatingToken.Allocations {
		addr, err := crypto.ParseAddress(alloc.Address)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("gatingToken.Allocations[%d].Address: %w", i, err)
		}
		amount, err := parseAmount(alloc.Amount)
		if err != nil {
			return core.Genesis{}, fmt.Errorf("gatingToken.Allocations[%d].Amount: %w", i, err)
		}
		g.Allocations = append(g.Allocations, core.Allocation{Address: addr, Amount: amount})
	}
	return g, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return big.NewInt(0), nil
	}
	amount, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	if amount.Sign() < 0 {
		return nil, fmt.Errorf("amount %q must not be negative", raw)
	}
	return amount, nil
}

// createDefault creates and saves a default configuration file together with
// an encrypted admin keystore. The generated admin receives an initial token
// allocation so a local drop is usable straight away.
func createDefault(path, passphrase string) (*Config, error) {
	if passphrase == "" {
		passphrase = os.Getenv(EnvKeyPass)
	}
	if passphrase == "" {
		return nil, errMissingPassphrase
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}
	keystorePath := defaultKeystorePath(path)
	if err := crypto.SaveToKeystore(keystorePath, key, passphrase); err != nil {
		return nil, err
	}
	admin := key.Address().Hex()

	cfg := &Config{
		RPCAddress:        ":8080",
		DataDir:           filepath.Join(filepath.Dir(path), "nengajo-data"),
		ChainID:           DefaultChainID,
		Environment:       DefaultEnvironment,
		AdminKeystorePath: keystorePath,
		Drop: Drop{
			Name:         "Henkaku Nengajo",
			Symbol:       "HNJ",
			OpenAt:       1672498800,
			CloseAt:      1704034800,
			InitialAdmin: admin,
			FeeRecipient: admin,
		},
		GatingToken: GatingToken{
			Symbol:      "HNK",
			Name:        "HenkakuV2",
			Decimals:    18,
			Allocations: []Allocation{{Address: admin, Amount: "1000"}},
		},
		Logging: Logging{Level: "info"},
	}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "admin.keystore")
}
