// Package storage persists acme-dns account credentials in a single JSON
// file keyed by bare domain name.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/acmedns"
)

// DefaultPath is the credential store location when --storage is not given
const DefaultPath = "/etc/letsencrypt/acmedns.json"

// ErrCorrupted marks a store file that exists and is non-empty but does not
// parse as JSON. Recovering it is an operator decision, never automatic.
var ErrCorrupted = errors.New("storage JSON is corrupted")

// Storage is the on-disk credential store, loaded fully at construction.
// There is no cross-process locking: the hook runs once per certificate
// issuance attempt and assumes a single writer.
type Storage struct {
	path     string
	accounts map[string]*acmedns.Account
}

// New loads the store at path. A missing file yields an empty store; an
// unreadable or corrupted file is an error.
func New(path string) (*Storage, error) {
	s := &Storage{
		path:     path,
		accounts: make(map[string]*acmedns.Account),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("storage file %s exists but cannot be read: %w", path, err)
	}

	if len(data) == 0 {
		return s, nil
	}

	if err := json.Unmarshal(data, &s.accounts); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, path, err)
	}
	if s.accounts == nil {
		s.accounts = make(map[string]*acmedns.Account)
	}

	return s, nil
}

// Path returns the backing file path
func (s *Storage) Path() string {
	return s.path
}

// Fetch returns the stored account for domain, or nil when none exists
func (s *Storage) Fetch(domain string) *acmedns.Account {
	return s.accounts[sanitizeDomain(domain)]
}

// Put stores account under domain. A wildcard domain is stored under its
// base name: both share one validation record identity.
func (s *Storage) Put(domain string, account *acmedns.Account) {
	s.accounts[sanitizeDomain(domain)] = account
}

// Domains returns the stored domain names in sorted order
func (s *Storage) Domains() []string {
	domains := make([]string, 0, len(s.accounts))
	for domain := range s.accounts {
		domains = append(domains, domain)
	}
	sort.Strings(domains)
	return domains
}

// Save writes the whole mapping back to disk. The write goes to a temp file
// first and is moved into place, so a crash mid-write never leaves a
// truncated store that still parses.
func (s *Storage) Save() error {
	data, err := json.MarshalIndent(s.accounts, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize storage: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp*")
	if err != nil {
		return fmt.Errorf("failed to write storage file %s: %w", s.path, err)
	}
	tmpPath := tmp.Name()

	// Credentials only, owner read/write
	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage file %s: %w", s.path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage file %s: %w", s.path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage file %s: %w", s.path, err)
	}

	// Rename is atomic on POSIX systems
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write storage file %s: %w", s.path, err)
	}

	return nil
}

// sanitizeDomain strips the wildcard marker so *.example.com and example.com
// map to the same entry
func sanitizeDomain(domain string) string {
	return strings.TrimPrefix(domain, "*.")
}
