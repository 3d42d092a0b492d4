package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/hook"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
)

var statusOutput string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "List registered acme-dns accounts",
	Long: `List the domains with stored acme-dns accounts and the CNAME record each
one expects. Credentials themselves are not printed.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "table",
		"output format: table, json or yaml")
}

// statusEntry is one row of status output
type statusEntry struct {
	Domain     string `json:"domain" yaml:"domain"`
	Subdomain  string `json:"subdomain" yaml:"subdomain"`
	FullDomain string `json:"fulldomain" yaml:"fulldomain"`
	CNAME      string `json:"cname" yaml:"cname"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	store, err := storage.New(storagePath())
	if err != nil {
		return err
	}

	var entries []statusEntry
	for _, domain := range store.Domains() {
		account := store.Fetch(domain)
		entries = append(entries, statusEntry{
			Domain:     domain,
			Subdomain:  account.Subdomain,
			FullDomain: account.FullDomain,
			CNAME:      fmt.Sprintf("%s%s. CNAME %s.", hook.ChallengePrefix, domain, account.FullDomain),
		})
	}

	out := cmd.OutOrStdout()

	switch statusOutput {
	case "json":
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(entries)
		if err != nil {
			return err
		}
		fmt.Fprint(out, string(data))
	case "table":
		if len(entries) == 0 {
			fmt.Fprintf(out, "No accounts registered in %s.\n", storagePath())
			return nil
		}
		fmt.Fprintf(out, "%-30s %s\n", "Domain", "CNAME target")
		for _, e := range entries {
			fmt.Fprintf(out, "%-30s %s\n", e.Domain, e.FullDomain)
		}
	default:
		return fmt.Errorf("unknown output format %q (want table, json or yaml)", statusOutput)
	}

	return nil
}
