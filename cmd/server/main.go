package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/thereayou/bizdesk/internal/config"
	"github.com/thereayou/bizdesk/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "bizdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg := config.Load()

	var (
		log *logger.Logger
		err error
	)
	if cfg.IsDevelopment() {
		log, err = logger.NewDevelopment()
	} else {
		gin.SetMode(gin.ReleaseMode)
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := NewServer(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer srv.Close()

	return srv.Run(ctx)
}
