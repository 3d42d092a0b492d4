package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/acmedns"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/config"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/hook"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
)

var registerForce bool

var registerCmd = &cobra.Command{
	Use:   "register <domain>",
	Short: "Register an acme-dns account for a domain ahead of time",
	Long: `Register a delegated acme-dns account for a domain without waiting for a
challenge. This lets you add the CNAME record and wait for DNS propagation
before the first certbot run, instead of failing that run on a missing
record. A wildcard domain registers under its base name.`,
	Args: cobra.ExactArgs(1),
	RunE: runRegister,
}

func init() {
	rootCmd.AddCommand(registerCmd)

	registerCmd.Flags().BoolVar(&registerForce, "force", false,
		"replace an already stored account")
}

func runRegister(cmd *cobra.Command, args []string) error {
	domain := args[0]

	cfg, err := config.Resolve(configPath())
	if err != nil {
		return err
	}

	store, err := storage.New(storagePath())
	if err != nil {
		return err
	}

	client := acmedns.NewClient(cfg.URL)
	out := cmd.OutOrStdout()

	account, created, err := hook.EnsureAccount(cmd.Context(), client, store, domain,
		cfg.AllowFrom, registerForce || cfg.ForceRegister, out)
	if err != nil {
		return err
	}

	if !created {
		base := strings.TrimPrefix(domain, "*.")
		fmt.Fprintf(out, "Account for %s already registered (use --force to replace it).\n", base)
		fmt.Fprintf(out, "Expected CNAME record:\n%s%s. CNAME %s.\n",
			hook.ChallengePrefix, base, account.FullDomain)
	}

	return nil
}
