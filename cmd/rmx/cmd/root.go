package cmd

import (
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/rmxdev/rmx"
)

var rootCmd = &cobra.Command{
	Use:   "rmx",
	Short: "Local mirror and exporter for the document cloud",
	Long:  "rmx keeps a local mirror of the remote document hierarchy and exports documents to portable files.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if viper.GetBool("verbose") {
			log.SetLevel(log.DebugLevel)
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ~/.config/rmx/config.yaml)")
	rootCmd.PersistentFlags().String("cache-dir", "", "cache directory (default: ~/.cache/rmx)")
	rootCmd.PersistentFlags().String("token", "", "user auth token")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "debug logging")

	viper.BindPFlag("cache_dir", rootCmd.PersistentFlags().Lookup("cache-dir"))
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if cfg := rootCmd.PersistentFlags().Lookup("config").Value.String(); cfg != "" {
		viper.SetConfigFile(cfg)
	} else {
		viper.AddConfigPath(configDir())
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("RMX")
	viper.AutomaticEnv()
	viper.SetDefault("cache_dir", defaultCacheDir())
	viper.SetDefault("base_url", "")
	viper.SetDefault("concurrency", rmx.DefaultConcurrency)

	viper.ReadInConfig()
}

func configDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "rmx")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".config", "rmx")
	}
	return ".rmx"
}

func defaultCacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "rmx")
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".cache", "rmx")
	}
	return ".rmx"
}

func newClient() (*rmx.Client, error) {
	return rmx.Open(
		rmx.WithCacheDir(viper.GetString("cache_dir")),
		rmx.WithBaseURL(viper.GetString("base_url")),
		rmx.WithToken(viper.GetString("token")),
		rmx.WithConcurrency(viper.GetInt("concurrency")),
	)
}
