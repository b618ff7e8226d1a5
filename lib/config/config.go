package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-i2p/go-ipc/lib/util"
	timeutil "github.com/go-i2p/go-ipc/lib/util/time"
	"github.com/go-i2p/logger"
	"github.com/spf13/viper"
)

var (
	CfgFile string
	log     = logger.GetGoI2PLogger()
)

const GOIPC_BASE_DIR = ".go-ipc"

// InitConfig loads the configuration file, creating a default one when
// none exists, and refreshes IPCConfigProperties.
func InitConfig() {
	if CfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(CfgFile)
	} else {
		// Default config path is $HOME/.go-ipc/
		viper.AddConfigPath(BuildIPCDirPath())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	setDefaults()
	handleConfigFile()
	UpdateIPCConfig()

	if IPCConfigProperties.CheckClockSkew {
		warnOnClockSkew()
	}
}

func setDefaults() {
	viper.SetDefault("ipc.root", DefaultIPCRoot)
	viper.SetDefault("ipc.pubsub_root", "")
	viper.SetDefault("ipc.check_clock_skew", false)
}

// NewIPCConfigFromViper creates a new IPCConfig from current viper settings.
// This is the preferred way to get config instead of using the global
// IPCConfigProperties.
func NewIPCConfigFromViper() *IPCConfig {
	cfg := &IPCConfig{
		Root:           viper.GetString("ipc.root"),
		PubSubRoot:     viper.GetString("ipc.pubsub_root"),
		CheckClockSkew: viper.GetBool("ipc.check_clock_skew"),
	}
	if cfg.PubSubRoot == "" {
		cfg.PubSubRoot = filepath.Join(cfg.Root, PubSubDirName)
	}
	return cfg
}

// UpdateIPCConfig updates the global IPCConfigProperties from viper settings.
// DEPRECATED: Use NewIPCConfigFromViper() instead to avoid global state mutation.
func UpdateIPCConfig() {
	*IPCConfigProperties = *NewIPCConfigFromViper()
}

func createDefaultConfig(defaultConfigDir string) {
	defaultConfigFile := filepath.Join(defaultConfigDir, "config.yaml")
	// Ensure directory exists
	if err := os.MkdirAll(defaultConfigDir, 0o755); err != nil {
		log.Fatalf("Could not create config directory: %s", err)
	}

	if err := viper.WriteConfigAs(defaultConfigFile); err != nil {
		log.Fatalf("Could not write default config file: %s", err)
	}

	log.Debugf("Created default configuration at: %s", defaultConfigFile)
}

func handleConfigFile() {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			if CfgFile != "" {
				log.Fatalf("Config file %s is not found: %s", CfgFile, err)
			} else {
				createDefaultConfig(BuildIPCDirPath())
			}
		} else {
			log.Fatalf("Error reading config file: %s", err)
		}
	} else {
		log.Debugf("Using config file: %s", viper.ConfigFileUsed())
	}
}

func warnOnClockSkew() {
	offset, err := timeutil.CheckSkew("", 0)
	if err != nil {
		log.WithError(err).Warn("Clock skew check failed")
		return
	}
	if offset > time.Minute || offset < -time.Minute {
		log.Warnf("System clock is %s off NTP time; envelope timestamps will be skewed", offset)
	}
}

func BuildIPCDirPath() string {
	return filepath.Join(util.UserHome(), GOIPC_BASE_DIR)
}
