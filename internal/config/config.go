package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type Config struct {
	Chain      ChainConfig      `mapstructure:"chain"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Processor  ProcessorConfig  `mapstructure:"processor"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Realtime   RealtimeConfig   `mapstructure:"realtime"`
	Server     ServerConfig     `mapstructure:"server"`
	Deployment DeploymentConfig `mapstructure:"deployment"`
}

type ChainConfig struct {
	Name        string        `mapstructure:"name"`
	ChainID     int64         `mapstructure:"chain_id"`
	RPCEndpoint string        `mapstructure:"rpc_endpoint"`
	BlockTime   time.Duration `mapstructure:"block_time"`
	StartBlock  uint64        `mapstructure:"start_block"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Name           string `mapstructure:"name"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"ssl_mode"`
	MaxConnections int32  `mapstructure:"max_connections"`
}

type ProcessorConfig struct {
	BatchSize        int `mapstructure:"batch_size"`
	FlushInterval    int `mapstructure:"flush_interval"`
	MetadataWorkers  int `mapstructure:"metadata_workers"`
	ProgressInterval int `mapstructure:"progress_interval"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type RealtimeConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIURL  string `mapstructure:"api_url"`
	APIKey  string `mapstructure:"api_key"`
}

type ServerConfig struct {
	Port       int  `mapstructure:"port"`
	RunIndexer bool `mapstructure:"run_indexer"`
}

// DeploymentConfig parameterizes the engine for one exchange deployment.
// The address lists drive price discovery and volume tracking; everything
// else about handler behavior is identical across deployments.
type DeploymentConfig struct {
	FactoryAddress       string `mapstructure:"factory_address"`
	WrappedNativeAddress string `mapstructure:"wrapped_native_address"`

	// Concentrated-liquidity oracle: a single stablecoin/wrapped-native
	// pool whose spot price is the native USD price.
	StablePoolAddress string `mapstructure:"stable_pool_address"`
	StableIsToken0    bool   `mapstructure:"stable_is_token0"`

	// Pair-based oracle: two stablecoin pairs blended by their
	// native-side reserves.
	StablePairs []StablePairConfig `mapstructure:"stable_pairs"`

	WhitelistTokens     []string `mapstructure:"whitelist_tokens"`
	Stablecoins         []string `mapstructure:"stablecoins"`
	MinimumNativeLocked string   `mapstructure:"minimum_native_locked"`
}

type StablePairConfig struct {
	Address        string `mapstructure:"address"`
	StableIsToken0 bool   `mapstructure:"stable_is_token0"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetEnvPrefix("INDEXER")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("chain.block_time", "1s")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_connections", 10)
	viper.SetDefault("processor.batch_size", 100)
	viper.SetDefault("processor.flush_interval", 50)
	viper.SetDefault("processor.metadata_workers", 5)
	viper.SetDefault("processor.progress_interval", 30)
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("deployment.minimum_native_locked", "5")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config.Deployment.normalize()
	return &config, nil
}

func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode)
}

func (d *DeploymentConfig) normalize() {
	d.FactoryAddress = strings.ToLower(d.FactoryAddress)
	d.WrappedNativeAddress = strings.ToLower(d.WrappedNativeAddress)
	d.StablePoolAddress = strings.ToLower(d.StablePoolAddress)
	for i := range d.StablePairs {
		d.StablePairs[i].Address = strings.ToLower(d.StablePairs[i].Address)
	}
	for i := range d.WhitelistTokens {
		d.WhitelistTokens[i] = strings.ToLower(d.WhitelistTokens[i])
	}
	for i := range d.Stablecoins {
		d.Stablecoins[i] = strings.ToLower(d.Stablecoins[i])
	}
}

// IsWhitelisted reports whether the token participates in tracked volume
// and price discovery.
func (d *DeploymentConfig) IsWhitelisted(tokenID string) bool {
	for _, addr := range d.WhitelistTokens {
		if addr == tokenID {
			return true
		}
	}
	return false
}

// IsStablecoin reports whether the token is pegged to one USD.
func (d *DeploymentConfig) IsStablecoin(tokenID string) bool {
	for _, addr := range d.Stablecoins {
		if addr == tokenID {
			return true
		}
	}
	return false
}

// MinimumLocked is the native-denominated liquidity a pool must hold
// before it qualifies as a price source.
func (d *DeploymentConfig) MinimumLocked() decimal.Decimal {
	min, err := decimal.NewFromString(d.MinimumNativeLocked)
	if err != nil {
		return decimal.NewFromInt(5)
	}
	return min
}
