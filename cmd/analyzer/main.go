package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/coldbell/walletrank/backend/internal/logging"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logging.Bootstrap(logging.ServiceAnalyzer).Error("analyzer exited with error", "err", err)
		stop()
		os.Exit(1)
	}
}
