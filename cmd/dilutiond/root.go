package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"dilution-ops-backend/config"
	"dilution-ops-backend/internal/log"
)

var (
	configFile string
)

var rootCmd = &cobra.Command{
	Use:          "dilutiond",
	Short:        "Job card and robot control service for the dilution dashboard",
	SilenceUsage: true,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(robotCmd)

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to configuration file")
}

// loadConfig reads the config file named by --config or CONFIG_PATH and
// installs the logger at the configured level.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path == "" {
		path = "./config/config.yaml"
	}

	cfg, err := config.Load(path)
	if err != nil {
		log.InitLog("info")
		return nil, err
	}
	log.InitLog(cfg.Log.Level)
	zap.S().Infof("configuration loaded from %s", path)
	return cfg, nil
}
