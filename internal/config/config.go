package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/feral-file/ff-collection-bridge/internal/domain"
)

// ENV_PREFIX prefixes every environment variable, e.g. FF_BRIDGE_NATS_URL
const ENV_PREFIX = "FF_BRIDGE"

// BaseConfig is shared by every program
type BaseConfig struct {
	Debug     bool   `mapstructure:"debug"`
	SentryDSN string `mapstructure:"sentry_dsn"`
}

// DatabaseConfig describes the postgres connection and its pool
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN returns the libpq keyword/value connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NATSConfig describes the JetStream connection, stream and relay consumer
type NATSConfig struct {
	URL               string        `mapstructure:"url"`
	StreamName        string        `mapstructure:"stream_name"`
	ConsumerName      string        `mapstructure:"consumer_name"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
	ReconnectWait     time.Duration `mapstructure:"reconnect_wait"`
	ConnectionName    string        `mapstructure:"connection_name"`
	AckWait           time.Duration `mapstructure:"ack_wait"`
	MaxDeliver        int           `mapstructure:"max_deliver"`
	CreateStream      bool          `mapstructure:"create_stream"`
	DuplicateWindow   time.Duration `mapstructure:"duplicate_window"`
	StreamMaxAge      time.Duration `mapstructure:"stream_max_age"`
	StreamReplication int           `mapstructure:"stream_replication"`
}

// NetworkConfig describes the root and child chain pair
type NetworkConfig struct {
	RootChain      domain.Chain `mapstructure:"root_chain"`
	ChildChain     domain.Chain `mapstructure:"child_chain"`
	Owner          string       `mapstructure:"owner"`    // deploys and owns every contract
	Proposer       string       `mapstructure:"proposer"` // checkpoints exits on the root chain
	MaxTokensPerTx uint64       `mapstructure:"max_tokens_per_tx"`
	RegistryName   string       `mapstructure:"registry_name"`
	RegistrySymbol string       `mapstructure:"registry_symbol"`
}

type EmitterConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxBlocks       uint64        `mapstructure:"max_blocks"` // per log query
	StartFromLatest bool          `mapstructure:"start_from_latest"`
	CursorSaveFreq  uint64        `mapstructure:"cursor_save_freq"` // in blocks
	CursorSaveDelay time.Duration `mapstructure:"cursor_save_delay"`
}

type RelayConfig struct {
	WorkerConcurrency int           `mapstructure:"worker_concurrency"`
	RetryMaxElapsed   time.Duration `mapstructure:"retry_max_elapsed"`
	RedeliverLimit    int           `mapstructure:"redeliver_limit"` // per trigger
}

// ServerConfig timeouts are in seconds
type ServerConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	ReadTimeout  int    `mapstructure:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"`
}

type AuthConfig struct {
	JWTPublicKey string   `mapstructure:"jwt_public_key"`
	APIKeys      []string `mapstructure:"api_keys"`
}

// DevnetConfig configures cmd/devnet
type DevnetConfig struct {
	BaseConfig `mapstructure:",squash"`
	Database   DatabaseConfig `mapstructure:"database"`
	NATS       NATSConfig     `mapstructure:"nats"`
	Network    NetworkConfig  `mapstructure:"network"`
	Emitter    EmitterConfig  `mapstructure:"emitter"`
	Relay      RelayConfig    `mapstructure:"relay"`
	Server     ServerConfig   `mapstructure:"server"`
	Auth       AuthConfig     `mapstructure:"auth"`
}

func (c *DevnetConfig) validate() error {
	for key, addr := range map[string]string{
		"network.owner":    c.Network.Owner,
		"network.proposer": c.Network.Proposer,
	} {
		if addr == "" {
			return fmt.Errorf("%s is required", key)
		}
		if _, err := domain.ParseAddress(addr); err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
	}
	if !domain.IsValidChain(c.Network.RootChain) || !domain.IsValidChain(c.Network.ChildChain) {
		return fmt.Errorf("unsupported chain pair %s/%s", c.Network.RootChain, c.Network.ChildChain)
	}
	return nil
}

// PredictAddressConfig configures cmd/predict-address
type PredictAddressConfig struct {
	BaseConfig  `mapstructure:",squash"`
	Kind        string `mapstructure:"kind"` // minimal or beacon
	Factory     string `mapstructure:"factory"`
	Target      string `mapstructure:"target"`   // implementation for minimal, beacon for beacon
	Deployer    string `mapstructure:"deployer"` // account calling createCollection
	Salt        string `mapstructure:"salt"`
	InitPayload string `mapstructure:"init_payload"`
}

func (c *PredictAddressConfig) validate() error {
	switch {
	case c.Factory == "":
		return errors.New("factory is required")
	case c.Target == "":
		return errors.New("target is required")
	case c.Deployer == "":
		return errors.New("deployer is required")
	}
	return nil
}

var devnetDefaults = map[string]any{
	"debug":                       false,
	"database.port":               5432,
	"database.sslmode":            "disable",
	"database.max_open_conns":     10,
	"database.max_idle_conns":     2,
	"database.conn_max_lifetime":  "5m",
	"database.conn_max_idle_time": "10m",
	"nats.url":                    "nats://127.0.0.1:4222",
	"nats.stream_name":            "BRIDGE_MESSAGES",
	"nats.consumer_name":          "bridge-relay",
	"nats.max_reconnects":         10,
	"nats.reconnect_wait":         "2s",
	"nats.connection_name":        "ff-collection-bridge",
	"nats.ack_wait":               "30s",
	"nats.max_deliver":            5,
	"nats.create_stream":          true,
	"nats.duplicate_window":       "2m",
	"nats.stream_max_age":         "168h",
	"nats.stream_replication":     1,
	"network.root_chain":          string(domain.ChainEthereumSepolia),
	"network.child_chain":         string(domain.ChainPolygonAmoy),
	"network.max_tokens_per_tx":   domain.DEFAULT_MAX_TOKENS_PER_TX,
	"network.registry_name":       "Bridged Collections",
	"network.registry_symbol":     "BCOL",
	"emitter.poll_interval":       "1s",
	"emitter.max_blocks":          1000,
	"emitter.start_from_latest":   false,
	"emitter.cursor_save_freq":    50,
	"emitter.cursor_save_delay":   "30s",
	"relay.worker_concurrency":    4,
	"relay.retry_max_elapsed":     "30s",
	"relay.redeliver_limit":       100,
	"server.host":                 "0.0.0.0",
	"server.port":                 8080,
	"server.read_timeout":         10,
	"server.write_timeout":        10,
	"server.idle_timeout":         120,
}

var predictAddressDefaults = map[string]any{
	"kind":         "beacon",
	"init_payload": "0x",
}

// unsetKeys have no default but must still be readable from the environment.
// Viper only maps env vars onto keys it already knows about.
var unsetKeys = []string{
	"sentry_dsn",
	"database.host",
	"database.user",
	"database.password",
	"database.dbname",
	"network.owner",
	"network.proposer",
	"auth.jwt_public_key",
	"auth.api_keys",
	"factory",
	"target",
	"deployer",
	"salt",
}

// LoadDevnetConfig reads cmd/devnet configuration from configFile (or a
// config.yaml found in the usual places), the .env files under envPath and
// FF_BRIDGE_* variables, in increasing precedence.
func LoadDevnetConfig(configFile string, envPath string) (*DevnetConfig, error) {
	var cfg DevnetConfig
	if err := load(viper.New(), "devnet", configFile, envPath, devnetDefaults, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadPredictAddressConfig reads cmd/predict-address configuration. Values set
// on v, such as bound flags, take precedence over everything else.
func LoadPredictAddressConfig(v *viper.Viper, configFile string, envPath string) (*PredictAddressConfig, error) {
	if v == nil {
		v = viper.New()
	}

	var cfg PredictAddressConfig
	if err := load(v, "predict-address", configFile, envPath, predictAddressDefaults, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func load(v *viper.Viper, service, configFile, envPath string, defaults map[string]any, out any) error {
	loadEnv(envPath, service)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath(filepath.Join("cmd", service))
		v.AddConfigPath("config/")
	}

	v.SetEnvPrefix(ENV_PREFIX)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	for _, key := range unsetKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// loadEnv overloads .env, .env.local and .env.<service>.local from envPath,
// later files winning.
func loadEnv(envPath string, service string) {
	if envPath == "" {
		envPath = "config/"
	}

	for _, name := range []string{".env", ".env.local", ".env." + service + ".local"} {
		_ = godotenv.Overload(filepath.Join(envPath, name))
	}
}

// ChdirRepoRoot walks up from the working directory to the first one holding
// a config directory, so programs started from cmd/<name> find their files.
func ChdirRepoRoot() {
	dir, err := os.Getwd()
	if err != nil {
		return
	}
	for range 5 {
		if info, err := os.Stat(filepath.Join(dir, "config")); err == nil && info.IsDir() {
			_ = os.Chdir(dir)
			return
		}
		dir = filepath.Dir(dir)
	}
}
