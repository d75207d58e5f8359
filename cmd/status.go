package cmd

import (
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/mirrorbucket/credmon/config"
	"github.com/mirrorbucket/credmon/credstore"
	"github.com/mirrorbucket/credmon/expiry"
)

// statusCmd creates the command printing the current credential state.
func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show cached tokens and their renewal urgency",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.Load()
			now := time.Now()

			creds := credstore.SharedCredentials(cfg.CredentialsFile, cfg.Profile)
			cmd.Printf("Profile: %s\n", cfg.Profile)
			cmd.Printf("Static keys present: %v (session token: %v)\n\n",
				creds.HasAccessKey && creds.HasSecretKey, creds.HasSessionToken)

			tokens := credstore.ReadTokens(cfg.SSOCacheDir)
			if len(tokens) == 0 {
				cmd.Println("No cached SSO tokens found. Run 'credmon login' first.")
				return
			}

			table := tablewriter.NewWriter(os.Stdout)
			table.SetHeader([]string{"Identity", "Expires At", "Remaining", "State"})
			table.SetAlignment(tablewriter.ALIGN_LEFT)       // Align all columns to the left
			table.SetHeaderAlignment(tablewriter.ALIGN_LEFT) // Align headers to the left

			for _, token := range tokens {
				expires := "-"
				remaining := "-"
				if token.ExpiryKnown {
					expires = token.ExpiresAt.Local().Format(time.RFC3339)
					remaining = formatRemaining(token.ExpiresAt.Sub(now))
				}
				state := expiry.Classify(token, now, cfg.Threshold)
				table.Append([]string{token.Identity(), expires, remaining, string(state)})
			}
			table.Render()

			assessment := expiry.Evaluate(tokens, now, cfg.Threshold)
			if assessment.NeedsImmediateRenewal {
				cmd.Println("\nRenewal needed: a token is expiring inside the urgency threshold.")
			}
		},
	}
}

// formatRemaining renders a duration in whole seconds, keeping the sign
// for already-expired tokens.
func formatRemaining(d time.Duration) string {
	return d.Round(time.Second).String()
}
