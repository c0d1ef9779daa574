package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sapliy/staff-notify/internal/auth"
	"github.com/sapliy/staff-notify/internal/policy"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var loginFlags struct {
	token  string
	secret string
	name   string
	roles  []string
	ttl    time.Duration
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store an access token for notifyd",
	Long: `Stores a bearer token in the config file. Paste a token issued by your
identity provider, or pass --secret with --name to mint a development token
signed with the server's JWT secret.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		token, err := resolveToken()
		if err != nil {
			return err
		}

		client := newClient()
		if err := client.Ping(); err != nil {
			return err
		}

		viper.Set("token", token)
		viper.Set("server_url", client.baseURL)
		if err := viper.WriteConfig(); err != nil {
			fmt.Printf("Warning: failed to write config: %v\n", err)
		}

		fmt.Println("Successfully logged in!")
		if len(token) > 11 {
			fmt.Printf("Token stored: %s...%s\n", token[:7], token[len(token)-4:])
		}
		return nil
	},
}

func resolveToken() (string, error) {
	if loginFlags.secret != "" {
		if loginFlags.name == "" {
			return "", errors.New("--name is required with --secret")
		}
		roles := make([]policy.Role, len(loginFlags.roles))
		for i, r := range loginFlags.roles {
			roles[i] = policy.Role(r)
		}
		return auth.NewAuthenticator(loginFlags.secret, viper.GetString("issuer")).Issue(auth.Principal{
			Subject: strings.ToLower(strings.ReplaceAll(loginFlags.name, " ", ".")),
			Name:    loginFlags.name,
			Roles:   roles,
		}, loginFlags.ttl)
	}

	if loginFlags.token != "" {
		return loginFlags.token, nil
	}

	fmt.Print("Token: ")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Scan()
	token := strings.TrimSpace(scanner.Text())
	if token == "" {
		return "", errors.New("no token given")
	}
	return token, nil
}

func init() {
	f := loginCmd.Flags()
	f.StringVar(&loginFlags.token, "token", "", "bearer token to store")
	f.StringVar(&loginFlags.secret, "secret", "", "JWT secret for minting a development token")
	f.StringVar(&loginFlags.name, "name", "", "directory name for a development token")
	f.StringSliceVar(&loginFlags.roles, "role", []string{string(policy.RoleCommunications)}, "roles for a development token")
	f.DurationVar(&loginFlags.ttl, "ttl", 12*time.Hour, "lifetime of a development token")
	rootCmd.AddCommand(loginCmd)
}
