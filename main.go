package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/p12tic/acme-dns-certbot-hook/cmd"
	"github.com/p12tic/acme-dns-certbot-hook/pkg/telemetry"
)

func main() {
	if err := telemetry.Init(telemetry.DefaultConfig()); err != nil {
		// Tracing is best-effort, the hook must still run
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize tracing: %v\n", err)
	}

	err := cmd.Execute()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	telemetry.Shutdown(ctx)
	cancel()

	if err != nil {
		os.Exit(1)
	}
}
