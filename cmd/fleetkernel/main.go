package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"fleetkernel/archive"
	"fleetkernel/config"
	"fleetkernel/engine"
	"fleetkernel/fleet"
	"fleetkernel/fleet/driverlink"
	"fleetkernel/fleet/loopback"
	"fleetkernel/jobs"
	"fleetkernel/messaging"
	"fleetkernel/orderstate"
	"fleetkernel/plant"
	"fleetkernel/store"
	"fleetkernel/www"
)

var Version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "fleetkernel.yaml", "path to config file")
	flag.Parse()

	if *showVersion {
		fmt.Println("fleetkernel", Version)
		return
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	// Database
	db, err := store.Open(&cfg.Database)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()
	log.Printf("fleetkernel: database open (%s)", cfg.Database.Driver)
	if err := www.EnsureDefaultAdmin(db); err != nil {
		log.Fatalf("create default admin: %v", err)
	}

	// Plant model
	model, err := plant.Load(cfg.Plant.ModelPath)
	if err != nil {
		log.Fatalf("load plant model: %v", err)
	}
	log.Printf("fleetkernel: plant %s loaded (%d vehicles)", model.Name, len(model.Vehicles))

	// Redis order cache is optional
	var orderCache *orderstate.RedisStore
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Address,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Printf("fleetkernel: redis not available (%v), running without cache", err)
	} else {
		log.Printf("fleetkernel: redis connected (%s)", cfg.Redis.Address)
		orderCache = orderstate.NewRedisStore(redisClient)
	}
	cancel()
	defer redisClient.Close()

	// Messaging client
	msgClient := messaging.NewClient(&cfg.Messaging)
	if err := msgClient.Connect(); err != nil {
		log.Printf("fleetkernel: messaging connect failed (%v)", err)
	} else {
		log.Printf("fleetkernel: messaging connected (%s)", msgClient.Backend())
	}
	defer msgClient.Close()

	// Fleet backend
	var backend fleet.Backend
	var link *driverlink.Link
	switch cfg.Fleet.Backend {
	case "driverlink":
		names := make([]string, 0, len(model.Vehicles))
		for _, v := range model.Vehicles {
			names = append(names, v.Name)
		}
		link = driverlink.New(driverlink.Config{
			Vehicles:      names,
			CommandsTopic: cfg.Messaging.CommandsTopic,
			StationID:     cfg.Messaging.StationID,
			StaleAfter:    cfg.Fleet.StaleAfter,
		}, messaging.NewOutboxSender(db, cfg.Messaging.StationID))
		backend = link
	case "", "loopback":
		backend = loopback.New(loopback.Config{
			Vehicles:      model.Vehicles,
			StepInterval:  cfg.Fleet.StepInterval,
			EnergyPerStep: cfg.Fleet.EnergyPerStep,
		})
	default:
		log.Fatalf("unknown fleet backend %q", cfg.Fleet.Backend)
	}
	log.Printf("fleetkernel: fleet backend %s", backend.Name())

	// Engine
	eng := engine.New(engine.Config{
		AppConfig:  cfg,
		ConfigPath: *configPath,
		DB:         db,
		Plant:      model,
		Fleet:      backend,
		OrderState: orderCache,
		MsgClient:  msgClient,
	})
	if err := eng.Start(); err != nil {
		log.Fatalf("start engine: %v", err)
	}
	defer eng.Stop()

	// Inbound orders from clients
	filter := messaging.KernelFilter(cfg.Messaging.StationID)
	orders := messaging.NewSubscriber(msgClient, cfg.Messaging.OrdersTopic, eng.KernelHandler(), filter)
	if err := orders.Start(); err != nil {
		log.Printf("fleetkernel: orders subscribe failed: %v", err)
	} else {
		log.Printf("fleetkernel: listening for orders on %s", cfg.Messaging.OrdersTopic)
	}

	// Vehicle driver reports
	if link != nil {
		reports := messaging.NewSubscriber(msgClient, cfg.Messaging.ReportsTopic, link, filter)
		if err := reports.Start(); err != nil {
			log.Printf("fleetkernel: reports subscribe failed: %v", err)
		} else {
			log.Printf("fleetkernel: listening for vehicle reports on %s", cfg.Messaging.ReportsTopic)
		}
	}

	// Outbox drainer
	drainer := messaging.NewOutboxDrainer(db, msgClient, cfg.Messaging.OutboxDrainInterval)
	drainer.Start()
	defer drainer.Stop()

	// Archive and cleaner
	arch, err := archive.Open(context.Background(), &cfg.Archive)
	if err != nil {
		log.Fatalf("open archive: %v", err)
	}
	if arch != nil {
		log.Printf("fleetkernel: archiving removed orders to %s", arch.Driver())
	}
	if cfg.Cleaner.Enabled {
		cleaner := jobs.NewCleaner(eng.Pool(), db, arch, cfg.Cleaner)
		if err := cleaner.Start(); err != nil {
			log.Fatalf("start cleaner: %v", err)
		}
		defer cleaner.Stop()
	}

	// Web server
	handler, stopWeb := www.NewRouter(eng, arch)

	addr := fmt.Sprintf("%s:%d", cfg.Web.Host, cfg.Web.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		log.Printf("fleetkernel: web server listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("web server: %v", err)
		}
	}()

	log.Printf("fleetkernel: ready")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Printf("fleetkernel: shutting down...")
	stopWeb()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	srv.Shutdown(shutdownCtx)

	log.Printf("fleetkernel: stopped")
}
