package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/jackdes93/webrunner/launcher"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	_ = launcher.New().Run(ctx)
}
