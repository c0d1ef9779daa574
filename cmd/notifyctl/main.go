package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "notifyctl",
	Short: "Staff notification CLI",
	Long:  `A CLI tool to browse notification history, export acknowledgements and manage drafts.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.notifyctl.yaml)")
	rootCmd.PersistentFlags().String("server", "", "notifyd base URL (default http://localhost:8080)")
	_ = viper.BindPFlag("server_url", rootCmd.PersistentFlags().Lookup("server"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		cobra.CheckErr(err)

		viper.AddConfigPath(home)
		viper.SetConfigType("yaml")
		viper.SetConfigName(".notifyctl")

		configPath := filepath.Join(home, ".notifyctl.yaml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			f, err := os.Create(configPath)
			if err != nil {
				fmt.Printf("Warning: failed to create config file: %v\n", err)
			} else {
				f.Close()
			}
		}
	}

	viper.SetEnvPrefix("NOTIFYCTL")
	viper.AutomaticEnv()
	_ = viper.ReadInConfig()
}

// newClient builds an API client from the stored server URL and token.
func newClient() *apiClient {
	server := viper.GetString("server_url")
	if server == "" {
		server = "http://localhost:8080"
	}
	return &apiClient{baseURL: server, token: viper.GetString("token")}
}

func main() {
	Execute()
}
