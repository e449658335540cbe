// Package config loads the daemon's environment-variable configuration
// (spec §6), following the env-var-first convention already used by
// internal/marble/config.go and services/oracle in the teacher tree.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
)

// Chain enumerates the supported chain targets.
type Chain string

const (
	ChainAnvil           Chain = "anvil"
	ChainOptimism        Chain = "optimism"
	ChainOptimismSepolia Chain = "optimism-sepolia"
	ChainBase            Chain = "base"
	ChainBaseSepolia     Chain = "base-sepolia"
)

// Daemon holds the daemon-scope environment variables (spec §6).
type Daemon struct {
	DatabaseURL      string `env:"DATABASE_URL,required"`
	RPCHost          string `env:"RPC_HOST,required"`
	IndexerEndpoint  string `env:"INDEXER_ENDPOINT,required"`

	LogLevel string `env:"LOG_LEVEL,default=debug"`
	NodeEnv  string `env:"NODE_ENV,default=dev"`
	Chain    string `env:"CHAIN,default=anvil"`
	Port     int    `env:"PORT,default=3000"`

	RateLimit       int    `env:"RATE_LIMIT,default=20"`
	RateLimitWindow string `env:"RATE_LIMIT_WINDOW,default=1s"`

	CORSAllowedOrigins string `env:"CORS_ALLOWED_ORIGINS,default=*"`

	RegistryAddress string `env:"REGISTRY_ADDRESS"`

	AgreementCheckInterval        string `env:"AGREEMENT_CHECK_INTERVAL,default=5s"`
	AgreementBalanceCheckInterval string `env:"AGREEMENT_BALANCE_CHECK_INTERVAL,default=5m"`
	BlockProcessRange             int    `env:"BLOCK_PROCESS_RANGE,default=1000"`
}

// ProviderConfig holds a single per-provider-scope set of environment
// variables keyed by <tag> (spec §6). Struct tags cannot express the
// dynamic <tag> suffix, so Load scans os.Environ() directly, mirroring
// CommonConfig.LoadContractHashesFromEnv's manual os.Getenv style.
type ProviderConfig struct {
	Tag                string
	ProviderPrivateKey string
	BillingPrivateKey  string
	OperatorPrivateKey string
	OperatorPipePort   int
	ProtocolAddress    string // optional
	Gateway            bool
}

// Config is the fully loaded configuration: the daemon scope plus every
// per-provider scope discovered in the environment.
type Config struct {
	Daemon    Daemon
	Providers []ProviderConfig
}

var tagSuffix = regexp.MustCompile(`^PROVIDER_PRIVATE_KEY_([A-Za-z0-9]+)$`)

// Load reads .env (if present, ignored otherwise), decodes the daemon scope
// via envdecode, then scans the environment for per-provider tags.
func Load() (*Config, error) {
	_ = godotenv.Load() // optional; absence is not an error

	var d Daemon
	if err := envdecode.Decode(&d); err != nil {
		return nil, fmt.Errorf("load daemon config: %w", err)
	}

	tags := discoverProviderTags()
	providers := make([]ProviderConfig, 0, len(tags))
	for _, tag := range tags {
		pc, err := loadProviderConfig(tag)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", tag, err)
		}
		providers = append(providers, pc)
	}

	return &Config{Daemon: d, Providers: providers}, nil
}

func discoverProviderTags() []string {
	seen := map[string]bool{}
	var tags []string
	for _, kv := range os.Environ() {
		key := strings.SplitN(kv, "=", 2)[0]
		m := tagSuffix.FindStringSubmatch(key)
		if m == nil {
			continue
		}
		if !seen[m[1]] {
			seen[m[1]] = true
			tags = append(tags, m[1])
		}
	}
	return tags
}

func loadProviderConfig(tag string) (ProviderConfig, error) {
	get := func(name string) string { return os.Getenv(name + "_" + tag) }
	requireVar := func(name string) (string, error) {
		v := get(name)
		if v == "" {
			return "", fmt.Errorf("%s_%s is required", name, tag)
		}
		return v, nil
	}

	providerKey, err := requireVar("PROVIDER_PRIVATE_KEY")
	if err != nil {
		return ProviderConfig{}, err
	}
	billingKey, err := requireVar("BILLING_PRIVATE_KEY")
	if err != nil {
		return ProviderConfig{}, err
	}
	operatorKey, err := requireVar("OPERATOR_PRIVATE_KEY")
	if err != nil {
		return ProviderConfig{}, err
	}
	portStr, err := requireVar("OPERATOR_PIPE_PORT")
	if err != nil {
		return ProviderConfig{}, err
	}
	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 {
		return ProviderConfig{}, fmt.Errorf("OPERATOR_PIPE_PORT_%s must be a positive integer", tag)
	}

	return ProviderConfig{
		Tag:                tag,
		ProviderPrivateKey: providerKey,
		BillingPrivateKey:  billingKey,
		OperatorPrivateKey: operatorKey,
		OperatorPipePort:   port,
		ProtocolAddress:    get("PROTOCOL_ADDRESS"),
		Gateway:            strings.EqualFold(get("GATEWAY"), "true"),
	}, nil
}
