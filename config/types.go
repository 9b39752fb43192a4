package config

// Drop holds the immutable parameters of the collectible drop.
type Drop struct {
	Name         string `toml:"Name"`
	Symbol       string `toml:"Symbol"`
	OpenAt       int64  `toml:"OpenAt"`
	CloseAt      int64  `toml:"CloseAt"`
	InitialAdmin string `toml:"InitialAdmin"`
	FeeRecipient string `toml:"FeeRecipient"`
}

// Allocation seeds a gating token balance at genesis.
type Allocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

// GatingToken configures the token that prices registrations and gates mints.
// Amounts are decimal strings in the token's smallest unit.
type GatingToken struct {
	Symbol           string       `toml:"Symbol"`
	Name             string       `toml:"Name"`
	Decimals         uint8        `toml:"Decimals"`
	MinMinterBalance string       `toml:"MinMinterBalance"`
	FeeBase          string       `toml:"FeeBase"`
	FeePerCopy       string       `toml:"FeePerCopy"`
	Allocations      []Allocation `toml:"Allocations"`
}

type Logging struct {
	Level      string `toml:"Level"`
	File       string `toml:"File"`
	MaxSizeMB  int    `toml:"MaxSizeMB"`
	MaxBackups int    `toml:"MaxBackups"`
	MaxAgeDays int    `toml:"MaxAgeDays"`
}

type Telemetry struct {
	Endpoint    string  `toml:"Endpoint"`
	Insecure    bool    `toml:"Insecure"`
	Headers     string  `toml:"Headers"`
	Traces      bool    `toml:"Traces"`
	Metrics     bool    `toml:"Metrics"`
	SampleRatio float64 `toml:"SampleRatio"`
}

// RPC configures the JSON-RPC listener. AuthTokenEnv names the environment
// variable holding the static bearer token for sendTransaction and
// JWTSecretEnv the HS256 secret for signed bearer tokens. With both variables
// empty the check is disabled.
type RPC struct {
	AuthTokenEnv        string   `toml:"AuthTokenEnv"`
	JWTSecretEnv        string   `toml:"JWTSecretEnv"`
	JWTIssuer           string   `toml:"JWTIssuer"`
	JWTAudience         string   `toml:"JWTAudience"`
	RequestsPerMinute   int      `toml:"RequestsPerMinute"`
	Burst               int      `toml:"Burst"`
	ReadTimeoutSeconds  int      `toml:"ReadTimeoutSeconds"`
	WriteTimeoutSeconds int      `toml:"WriteTimeoutSeconds"`
	TrustedProxies      []string `toml:"TrustedProxies"`
}

// Indexer configures the activity store. Driver is "sqlite" or "postgres";
// an empty driver disables indexing.
type Indexer struct {
	Driver string `toml:"Driver"`
	DSN    string `toml:"DSN"`
}
