/*
main.go - On-farm agent entry point

PURPOSE:
  Runs the offline-first farm client: local SQLite ledger, durable sync
  queue, connectivity watcher, and the scheduled replayer that pushes
  queued mutations back to the cooperative server.

STARTUP SEQUENCE:
  1. Load configuration (.env / environment)
  2. Open the local SQLite store (ledger + sync queue)
  3. Load farm/product master data
  4. Build the reconciliation service against the remote client
  5. Start the connectivity prober and the sync scheduler

CONFIGURATION:
  LEDGER_SERVER_URL       Cooperative server base URL
  AGENT_DB_PATH           Local SQLite path (ledger + queue)
  AGENT_FARM_ID           This farm's id in the master data
  AGENT_OPERATOR          Name recorded as creator on new records
  AGENT_MASTER_DATA_PATH  JSON farm/product registry
  SYNC_CRON_SCHEDULE      Drain schedule (default: every 5 minutes)

SEE ALSO:
  - syncer/: drain scheduling and connectivity probing
  - ledger/reconcile.go: the write path every mutation goes through
*/
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/coopstack/farm-ledger/config"
	"github.com/coopstack/farm-ledger/farm"
	"github.com/coopstack/farm-ledger/ledger"
	"github.com/coopstack/farm-ledger/logger"
	"github.com/coopstack/farm-ledger/remote"
	"github.com/coopstack/farm-ledger/store/sqlite"
	"github.com/coopstack/farm-ledger/syncer"
)

func main() {
	envFile := flag.String("env", "", "path to .env file")
	flag.Parse()

	log := logger.Must(logger.New())
	defer log.Sync()

	cfg, err := config.Load(*envFile)
	if err != nil {
		log.Fatal("failed to load configuration", zap.Error(err))
	}

	store, err := sqlite.New(cfg.Agent.DBPath)
	if err != nil {
		log.Fatal("failed to open local store", zap.Error(err))
	}
	defer store.Close()

	registry, err := loadRegistry(cfg.Agent)
	if err != nil {
		log.Fatal("failed to load master data", zap.Error(err))
	}

	client := remote.New(cfg.Agent.ServerURL, remote.WithLogger(logger.Named(log, "remote")))

	svc := ledger.NewService(ledger.ServiceOptions{
		Statistics: store.Statistics(),
		Invoices:   store.Invoices(),
		Remote:     client,
		Queue:      store,
		Catalog:    registry,
		Modes:      registry,
		Identity:   ledger.StaticIdentity{Actor: ledger.Actor{ID: cfg.Agent.Operator, Name: cfg.Agent.Operator, Role: "operator"}},
		Logger:     logger.Named(log, "ledger"),
	})
	replayer := ledger.NewReplayer(store, svc, logger.Named(log, "replay"))

	prober := syncer.NewProber(client.Ping, 30*time.Second, logger.Named(log, "prober"))
	prober.Start()

	s, err := syncer.New(cfg.Sync, replayer, prober, logger.Named(log, "syncer"))
	if err != nil {
		log.Fatal("failed to build syncer", zap.Error(err))
	}
	if err := s.Start(); err != nil {
		log.Fatal("failed to start syncer", zap.Error(err))
	}

	log.Info("agent running",
		zap.String("farm", cfg.Agent.FarmID),
		zap.String("server", cfg.Agent.ServerURL))

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down agent")
	s.Stop()
	prober.Stop()
	log.Info("agent stopped")
}

// loadRegistry reads the JSON master data, falling back to the standard
// carton pair for the configured farm when no file is given.
func loadRegistry(cfg config.Agent) (*farm.Registry, error) {
	if cfg.MasterDataPath != "" {
		raw, err := os.ReadFile(cfg.MasterDataPath)
		if err != nil {
			return nil, err
		}
		return farm.ParseRegistry(string(raw))
	}

	reg := farm.NewRegistry()
	products := farm.StandardCartonPair()
	ids := make([]ledger.ProductID, 0, len(products))
	for _, p := range products {
		reg.AddProduct(p)
		ids = append(ids, p.ID)
	}
	reg.AddFarm(farm.Farm{
		ID:       ledger.FarmID(cfg.FarmID),
		Name:     cfg.FarmID,
		Mode:     ledger.ModeCarryForward,
		Products: ids,
	})
	return reg, nil
}
