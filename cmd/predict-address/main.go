package main

import (
	"fmt"
	"os"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/feral-file/ff-collection-bridge/internal/config"
	"github.com/feral-file/ff-collection-bridge/internal/domain"
	"github.com/feral-file/ff-collection-bridge/internal/factory"
	"github.com/feral-file/ff-collection-bridge/internal/logger"
)

// flag name -> config key
var flagKeys = map[string]string{
	"kind":         "kind",
	"factory":      "factory",
	"target":       "target",
	"deployer":     "deployer",
	"salt":         "salt",
	"init-payload": "init_payload",
}

func buildFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("predict-address", pflag.ExitOnError)

	fs.String("config", "", "Path to configuration file")
	fs.String("env", "config/", "Path to environment files")
	fs.String("kind", "beacon", "Factory kind: minimal or beacon")
	fs.String("factory", "", "Factory address")
	fs.String("target", "", "Implementation (minimal) or beacon (beacon) address the proxies point to")
	fs.String("deployer", "", "Account calling createCollection")
	fs.String("salt", "0x", "Salt, up to 32 bytes of hex")
	fs.String("init-payload", "0x", "Init payload passed to the collection, hex encoded")

	return fs
}

func main() {
	fs := buildFlagSet()
	_ = fs.Parse(os.Args[1:])

	v := viper.New()
	for name, key := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			panic(fmt.Sprintf("Failed to bind flag %s: %v", name, err))
		}
	}

	configFile, _ := fs.GetString("config")
	envPath, _ := fs.GetString("env")
	cfg, err := config.LoadPredictAddressConfig(v, configFile, envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(2)
	}

	if err := logger.Initialize(logger.Config{Debug: cfg.Debug}); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}

	addr, err := predict(cfg)
	if err != nil {
		logger.Fatal("Failed to predict address", zap.Error(err))
	}

	logger.Debug("Predicted collection address",
		zap.String("kind", cfg.Kind),
		zap.String("factory", cfg.Factory),
		zap.String("deployer", cfg.Deployer),
		zap.String("address", addr.Hex()),
	)
	fmt.Println(addr.Hex())
}

// predict computes the CREATE2 address a factory deploys a collection to, without
// any chain access
func predict(cfg *config.PredictAddressConfig) (common.Address, error) {
	kind := factory.Kind(cfg.Kind)
	if kind != factory.KindMinimal && kind != factory.KindBeacon {
		return common.Address{}, fmt.Errorf("%w: unknown factory kind %q", domain.ErrInvalidInput, cfg.Kind)
	}

	factoryAddr, err := domain.ParseAddress(cfg.Factory)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid factory: %w", err)
	}
	target, err := domain.ParseAddress(cfg.Target)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid target: %w", err)
	}
	deployer, err := domain.ParseAddress(cfg.Deployer)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid deployer: %w", err)
	}

	salt, err := decodeHex(cfg.Salt)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid salt: %w", err)
	}
	if len(salt) > common.HashLength {
		return common.Address{}, fmt.Errorf("invalid salt: longer than %d bytes", common.HashLength)
	}
	initPayload, err := decodeHex(cfg.InitPayload)
	if err != nil {
		return common.Address{}, fmt.Errorf("invalid init payload: %w", err)
	}

	code := factory.MinimalProxyCode(target)
	if kind == factory.KindBeacon {
		code = factory.BeaconProxyCode(target)
	}

	return factory.ComputeAddress(
		factoryAddr,
		common.BytesToHash(salt),
		deployer,
		initPayload,
		crypto.Keccak256Hash(code),
		kind.IncludesPayload(),
	), nil
}

// decodeHex decodes an optional 0x prefixed hex string, odd lengths included
func decodeHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	if has0x(s) {
		s = s[2:]
	}
	if len(s)%2 == 1 {
		s = "0" + s
	}
	return hexutil.Decode("0x" + s)
}

func has0x(s string) bool {
	return len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X')
}
