// Package cmd implements the agentvault command-line interface: a
// reference agent server (serve), client-side task commands
// (send/watch), and key management commands (keys).
package cmd

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	keyFile string

	rootCmd = &cobra.Command{
		Use:   "agentvault",
		Short: "Discover, authenticate to, and talk to A2A agents",
		Long:  longRoot,
	}
)

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default $HOME/.agentvault/config.yml)")
	rootCmd.PersistentFlags().StringVar(&keyFile, "key-file", "", "credential key file (.env or .json)")
	rootCmd.PersistentFlags().Bool("verbose", false, "enable debug logging")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

func initConfig() {
	if viper.GetBool("verbose") {
		log.SetLevel(log.DebugLevel)
		log.SetReportCaller(true)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home + "/.agentvault")
		}
		viper.AddConfigPath(".")
		viper.SetConfigName("config")
		viper.SetConfigType("yml")
	}

	viper.SetEnvPrefix("AGENTVAULT")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			fmt.Fprintln(os.Stderr, "agentvault: failed to read config file:", err)
		}
	}
}

var longRoot = `
agentvault is a reference Go implementation of an ecosystem for
discovering, authenticating to, and communicating with autonomous
agents over the Agent-to-Agent (A2A) protocol: JSON-RPC requests and
Server-Sent Events streams, with pluggable per-agent credentials.
`
