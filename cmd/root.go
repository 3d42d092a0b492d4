package cmd

import (
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/p12tic/acme-dns-certbot-hook/pkg/config"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/hook"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/storage"
)

var (
	cfgFile     string
	storageFile string
	verbose     bool
	// Version is set via ldflags during build
	Version = "dev"
)

// rootCmd is the certbot hook itself: certbot points --manual-auth-hook at
// this binary and supplies the challenge through the environment
var rootCmd = &cobra.Command{
	Use:   "acme-dns-hook",
	Short: "Certbot auth hook for acme-dns DNS-01 challenges",
	Long: `acme-dns-hook answers certbot DNS-01 challenges through an acme-dns server.

On the first run for a domain it registers a delegated acme-dns account,
stores the credentials locally, and prints the CNAME record you must add to
your DNS zone. On every run it pushes the current validation token so the
acme-dns server can answer the _acme-challenge TXT query.

Use it as:
  certbot certonly --manual --preferred-challenges dns \
      --manual-auth-hook /usr/local/bin/acme-dns-hook -d '*.example.com'`,
	Version:      Version,
	SilenceUsage: true,
	RunE:         runHook,
}

// Execute runs the root command. Any error has already been printed by
// cobra when this returns; the caller only decides the exit code.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is "+config.DefaultPath+")")
	rootCmd.PersistentFlags().StringVar(&storageFile, "storage", "",
		"credential store file (default is "+storage.DefaultPath+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig loads a .env file if one is nearby and wires ACMEDNS_*
// environment variables into viper
func initConfig() {
	if envFile := findEnvFile(); envFile != "" {
		_ = godotenv.Load(envFile)
	}

	viper.SetEnvPrefix("ACMEDNS")
	viper.AutomaticEnv()
}

// findEnvFile searches for a .env file in the current directory and its
// parents
func findEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for i := 0; i < 10; i++ {
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func runHook(cmd *cobra.Command, args []string) error {
	return hook.Run(cmd.Context(), hook.Options{
		ConfigPath:  configPath(),
		StoragePath: storagePath(),
		Out:         cmd.OutOrStdout(),
	})
}

// configPath resolves the config file location: flag, then environment,
// then default
func configPath() string {
	if cfgFile != "" {
		return cfgFile
	}
	if v := os.Getenv(config.EnvConfigPath); v != "" {
		return v
	}
	return config.DefaultPath
}

// storagePath resolves the credential store location the same way
func storagePath() string {
	if storageFile != "" {
		return storageFile
	}
	if v := os.Getenv(config.EnvStoragePath); v != "" {
		return v
	}
	return storage.DefaultPath
}
