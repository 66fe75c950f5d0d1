package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/BretMeraki/Forest7-15-sub001/internal/logging"
)

var (
	cfgFile   string
	debug     bool
	projectID string
	pathName  string
	rootCmd   = &cobra.Command{
		Use:   "forest",
		Short: "forest decomposes goals into progressive hierarchical task trees",
	}
)

// Execute runs the root command.
func Execute() error {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", filepath.Join(".forest", "config.json"), "config file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&projectID, "project", "default", "project the tree belongs to")
	rootCmd.PersistentFlags().StringVar(&pathName, "path", "", "named path within the project")
	if err := viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config")); err != nil {
		return fmt.Errorf("bind config flag: %w", err)
	}
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		logging.Init(debug)
		_ = godotenv.Load()
	}
	rootCmd.AddCommand(buildCmd())
	rootCmd.AddCommand(expandCmd())
	rootCmd.AddCommand(completeCmd())
	rootCmd.AddCommand(nextCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(serveCmd())
	return rootCmd.Execute()
}

func initConfig() {
	path := cfgFile
	if path == "" {
		path = filepath.Join(".forest", "config.json")
	}
	viper.SetConfigFile(path)
	viper.SetConfigType("json")
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
}
