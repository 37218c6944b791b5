package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/opennow/client/internal/config"
)

var (
	flagAccessToken  string
	flagRefreshToken string
	flagExpiresInSec int
)

// loginCmd writes a credential pair handed to it by an external OAuth flow
// into the token store. Token acquisition itself happens elsewhere; this
// verb exists so the rest of the client, the token warden in particular,
// has something to read and refresh.
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Store a credential pair obtained from an external login flow",
	Run: func(cmd *cobra.Command, args []string) {
		if flagAccessToken == "" {
			fmt.Fprintln(os.Stderr, "--access-token is required")
			os.Exit(1)
		}
		now := time.Now()
		tf := &config.TokenFile{
			AccessToken:  flagAccessToken,
			RefreshToken: flagRefreshToken,
			IssuedAt:     now,
			ExpiresAt:    now.Add(time.Duration(flagExpiresInSec) * time.Second),
		}
		if err := config.SaveTokens(tf); err != nil {
			fmt.Fprintf(os.Stderr, "failed to save credentials: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("credentials saved")
	},
}

func init() {
	loginCmd.Flags().StringVar(&flagAccessToken, "access-token", "", "current access credential")
	loginCmd.Flags().StringVar(&flagRefreshToken, "refresh-token", "", "refresh credential, if any")
	loginCmd.Flags().IntVar(&flagExpiresInSec, "expires-in", 3600, "nominal lifetime of the access credential, in seconds")
	rootCmd.AddCommand(loginCmd)
}
