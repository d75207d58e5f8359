package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/mirrorbucket/credmon/config"
	"github.com/mirrorbucket/credmon/credstore"
	"github.com/mirrorbucket/credmon/login"
	"github.com/mirrorbucket/credmon/pkg/clierr"
)

// loginCmd creates the command for a one-shot SSO login. Portal
// credentials come from SSO_USERNAME/SSO_PASSWORD or an interactive
// prompt; without them the browser automation is skipped and the login
// must be finished by hand in the opened device flow.
func loginCmd() *cobra.Command {
	var headless bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Perform an SSO login to refresh cached credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			applyLogLevel(cfg.LogLevel)

			sso, err := credstore.SSOConfig(cfg.ConfigFile, cfg.Profile)
			if err != nil {
				return clierr.New(clierr.Config, "profile has no usable SSO configuration", err)
			}

			username := os.Getenv("SSO_USERNAME")
			password := os.Getenv("SSO_PASSWORD")
			if username == "" && term.IsTerminal(int(os.Stdin.Fd())) {
				cmd.Println("Enter your SSO portal credentials (leave username empty to finish the login manually).")
				username = promptForInput("SSO username: ")
				if username != "" {
					password = promptForPassword("SSO password: ")
				}
			}

			err = login.Run(cmd.Context(), login.Options{
				Profile:  cfg.Profile,
				StartURL: sso.StartURL,
				Username: username,
				Password: password,
				Headless: headless,
				CacheDir: cfg.SSOCacheDir,
				Timeout:  timeout,
			})
			if err != nil {
				return clierr.New(clierr.Auth, "SSO login failed", err)
			}
			cmd.Println("Login was successful.")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&headless, "headless", "n", true, "Login in headless mode without showing the browser window? [true, false]")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up if no fresh token appears within this window")

	return cmd
}

// promptForInput prompts the user for input and returns the trimmed string.
func promptForInput(prompt string) string {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print(prompt)
	input, err := reader.ReadString('\n')
	if err != nil {
		fmt.Println("Error: Failed to read input.")
		os.Exit(1)
	}
	return strings.TrimSpace(input)
}

// promptForPassword prompts the user for a password securely and returns the trimmed string.
func promptForPassword(prompt string) string {
	fmt.Print(prompt)
	password, err := term.ReadPassword(int(os.Stdin.Fd()))
	if err != nil {
		fmt.Println("Error: Failed to read password.")
		os.Exit(1)
	}
	fmt.Println()
	return strings.TrimSpace(string(password))
}
