package cmd

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/acmedns"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/config"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/dnscheck"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
)

var (
	checkWait    bool
	checkTimeout time.Duration
)

var checkCmd = &cobra.Command{
	Use:   "check [domain...]",
	Short: "Verify CNAME records for registered domains have propagated",
	Long: `Check that the _acme-challenge CNAME record of each registered domain
resolves on the public resolvers and points at the delegated acme-dns name.
Without arguments every stored domain is checked. With --wait the command
polls with exponential backoff until the records propagate or the timeout
expires.`,
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().BoolVar(&checkWait, "wait", false,
		"keep polling until the records propagate")
	checkCmd.Flags().DurationVar(&checkTimeout, "timeout", 10*time.Minute,
		"how long to poll with --wait")
}

func runCheck(cmd *cobra.Command, args []string) error {
	cfg, err := config.Resolve(configPath())
	if err != nil {
		return err
	}

	store, err := storage.New(storagePath())
	if err != nil {
		return err
	}

	domains := args
	if len(domains) == 0 {
		domains = store.Domains()
	}
	if len(domains) == 0 {
		return fmt.Errorf("no accounts registered in %s", storagePath())
	}

	out := cmd.OutOrStdout()

	// The server being down explains every failed update, so probe it first
	client := acmedns.NewClient(cfg.URL)
	if err := client.Healthy(cmd.Context()); err != nil {
		fmt.Fprintf(out, "Warning: %v\n", err)
	} else if verbose {
		fmt.Fprintf(out, "acme-dns server %s is healthy\n", cfg.URL)
	}

	checker := dnscheck.NewChecker()

	var mu sync.Mutex
	failed := 0

	g, ctx := errgroup.WithContext(cmd.Context())
	for _, arg := range domains {
		domain := strings.TrimPrefix(arg, "*.")
		account := store.Fetch(domain)
		if account == nil {
			return fmt.Errorf("no account registered for %s", domain)
		}

		g.Go(func() error {
			var err error
			if checkWait {
				err = checker.Wait(ctx, domain, account.FullDomain, checkTimeout, nil)
			} else {
				var ok bool
				ok, err = checker.CheckCNAME(ctx, domain, account.FullDomain)
				if err == nil && !ok {
					err = dnscheck.ErrNotPropagated
				}
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failed++
				fmt.Fprintf(out, "%-30s not propagated (%v)\n", domain, err)
				fmt.Fprintf(out, "  expected: _acme-challenge.%s. CNAME %s.\n", domain, account.FullDomain)
			} else {
				fmt.Fprintf(out, "%-30s ok\n", domain)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d domains not propagated", failed, len(domains))
	}

	return nil
}
