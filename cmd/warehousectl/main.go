// Package main is the entry point for warehousectl.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/unifiedui/message-warehouse/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand(cli.DefaultEnvironment()).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("warehousectl failed")
		stop()
		os.Exit(1)
	}
}
