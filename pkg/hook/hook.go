// Package hook implements the certbot manual-auth-hook flow: ensure a
// delegated acme-dns account exists for the challenged domain, then push the
// validation token as the TXT record.
package hook

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/acmedns"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/config"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/telemetry"
)

// Environment variables supplied by certbot for the challenge
const (
	EnvDomain     = "CERTBOT_DOMAIN"
	EnvValidation = "CERTBOT_VALIDATION"
)

// ChallengePrefix is the subdomain queried by the validating party
const ChallengePrefix = "_acme-challenge."

// Options configures a single hook run
type Options struct {
	ConfigPath  string
	StoragePath string
	// Out receives operator-facing notices (defaults to os.Stdout)
	Out io.Writer
}

// Run executes the hook once. Every failure is terminal; the caller prints
// the error and exits non-zero.
func Run(ctx context.Context, opts Options) error {
	out := opts.Out
	if out == nil {
		out = os.Stdout
	}

	domain, ok := os.LookupEnv(EnvDomain)
	if !ok || domain == "" {
		return fmt.Errorf("environment variable %s is not set; this program must be run by certbot as a manual-auth-hook", EnvDomain)
	}
	token, ok := os.LookupEnv(EnvValidation)
	if !ok || token == "" {
		return fmt.Errorf("environment variable %s is not set; this program must be run by certbot as a manual-auth-hook", EnvValidation)
	}

	// A wildcard request validates against the base domain's record
	domain = strings.TrimPrefix(domain, "*.")

	cfg, err := config.Resolve(opts.ConfigPath)
	if err != nil {
		return err
	}

	store, err := storage.New(opts.StoragePath)
	if err != nil {
		return err
	}

	client := acmedns.NewClient(cfg.URL)

	account, _, err := EnsureAccount(ctx, client, store, domain, cfg.AllowFrom, cfg.ForceRegister, out)
	if err != nil {
		return err
	}

	return client.UpdateTXTRecord(ctx, account, token)
}

// EnsureAccount returns the stored account for domain, registering and
// persisting a new one when none exists or force is set. The second return
// reports whether a registration happened. On first-time registration the
// operator is told which CNAME record to add; the hook never touches the
// main DNS zone itself.
func EnsureAccount(ctx context.Context, client *acmedns.Client, store *storage.Storage, domain string, allowFrom []string, force bool, out io.Writer) (*acmedns.Account, bool, error) {
	account := store.Fetch(domain)
	if account != nil && !force {
		return account, false, nil
	}

	account, err := client.RegisterAccount(ctx, allowFrom)
	if err != nil {
		return nil, false, err
	}

	store.Put(domain, account)

	saveCtx, span := telemetry.TraceStorage(ctx, "save", store.Path())
	err = store.Save()
	if err != nil {
		telemetry.RecordError(saveCtx, err)
	}
	span.End()
	if err != nil {
		return nil, false, err
	}

	fmt.Fprintf(out, "Please add the following CNAME record to your main DNS zone:\n%s%s. CNAME %s.\n",
		ChallengePrefix, domain, account.FullDomain)

	return account, true, nil
}
