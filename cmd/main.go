// Command collat tracks a collateralized-debt position on a lending
// protocol and drives deposit/withdraw/borrow/repay requests against it.
// It supports a real EVM backend and an in-memory simulate backend, and
// can be configured via a YAML file or command-line arguments.
//
// Usage:
//
//	collat setup          (interactive config wizard)
//	collat --config config.yaml
//	collat (uses CLI arguments)
//
// Required environment variables:
//
//	For the evm platform: COLLAT_PRIVATE_KEY
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/vadiminshakov/collat/config"
	"github.com/vadiminshakov/collat/internal"
	"github.com/vadiminshakov/collat/internal/clients"
	"github.com/vadiminshakov/collat/internal/setup"
	"github.com/vadiminshakov/collat/internal/storage/snapshots"
	"github.com/vadiminshakov/collat/internal/web"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "setup" {
		if err := setup.RunTUI(); err != nil {
			log.Fatal(err)
		}
		return
	}

	conf, err := config.Get()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var client any
	switch conf.Platform {
	case "evm":
		privateKey := os.Getenv("COLLAT_PRIVATE_KEY")
		if privateKey == "" {
			log.Fatal("COLLAT_PRIVATE_KEY environment variable must be set")
		}
		evmClient, err := clients.NewEVMClient(ctx, conf.RPCURL, privateKey, conf.ContractAddress, conf.CollateralToken, conf.DebtToken)
		if err != nil {
			log.Fatal(err)
		}
		defer evmClient.Close()
		client = evmClient
	case "simulate":
		client = clients.NewSimulateClient()
	default:
		log.Fatalf("unsupported platform: %s", conf.Platform)
	}

	store, err := snapshots.NewWALStore(conf.WALDir)
	if err != nil {
		log.Fatal(err)
	}
	defer store.Close()

	tracker, err := internal.NewPositionTracker(conf, client, store, logger)
	if err != nil {
		log.Fatal(err)
	}

	if conf.WebAddr != "" || len(conf.TLSDomains) > 0 {
		server := web.NewServer(conf.WebAddr, store, tracker.Orchestrator)
		go func() {
			var err error
			if len(conf.TLSDomains) > 0 {
				err = server.StartWithAutoTLS(ctx, conf.TLSDomains, "")
			} else {
				err = server.Start(ctx)
			}
			if err != nil {
				logger.Error("web server stopped", zap.Error(err))
			}
		}()
	}

	if err := tracker.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatal(err)
	}
}
