package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"blockroom/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := app.LoadConfig(os.Getenv, app.DefaultLogger())
	if err := app.Run(ctx, cfg); err != nil {
		log.Fatalf("%v", err)
	}
}
