package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/vaultgraph/vaultd/internal/auth"
	"github.com/vaultgraph/vaultd/internal/config"
	"github.com/vaultgraph/vaultd/internal/dag"
	"github.com/vaultgraph/vaultd/internal/httpserver"
	"github.com/vaultgraph/vaultd/internal/store"
	"github.com/vaultgraph/vaultd/internal/vaultobserve"
	"github.com/vaultgraph/vaultd/internal/volumes"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db open: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("db ping: %v", err)
	}

	metaStore := store.NewPGStore(db)
	registry := volumes.NewRegistry(metaStore)
	dagEngine := dag.NewEngine(metaStore)

	var jwks *auth.JWKSCache
	if cfg.JWKSURL != "" {
		jwks = auth.NewJWKSCache(cfg.JWKSURL, 0)
	}
	resolver := auth.NewResolver(auth.Config{
		StaticUsers:      cfg.StaticUsers,
		StaticSystem:     cfg.StaticSystems,
		InsecureAuthStub: cfg.InsecureAuthStub,
		JWKS:             jwks,
	})

	var events *vaultobserve.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		events, err = vaultobserve.NewEventPublisher(vaultobserve.PublisherConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   "vault.snapshots.admitted",
		})
		if err != nil {
			log.Fatalf("event publisher init: %v", err)
		}
		defer events.Close()
	}

	server := httpserver.New(registry, dagEngine, resolver, metaStore, events)
	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("vaultd listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("http server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	sig := <-stop
	log.Printf("received %s, draining", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
