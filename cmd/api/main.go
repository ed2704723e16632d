package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/audit"
	"github.com/pkanduri1/fabric-platform-sub006/internal/authz"
	"github.com/pkanduri1/fabric-platform-sub006/internal/gateway"
	"github.com/pkanduri1/fabric-platform-sub006/internal/httpapi"
	"github.com/pkanduri1/fabric-platform-sub006/internal/obs"
	"github.com/pkanduri1/fabric-platform-sub006/internal/query"
	"github.com/pkanduri1/fabric-platform-sub006/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		authzStore  authz.Store
		auditStore  audit.Store
		recordStore gateway.RecordStore
		readDB      *sql.DB
		pingDB      *sql.DB
	)

	dsn := os.Getenv("FABRIC_PG_DSN")
	roDSN := os.Getenv("FABRIC_PG_RO_DSN")
	if roDSN == "" {
		roDSN = dsn
	}

	if dsn != "" {
		store, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		defer store.Close()
		authzStore = store
		auditStore = store
		recordStore = store
		pingDB = store.DB()
	} else {
		// DSN-less startup: authorization and audit run in memory so the
		// service stays usable in dev; ad-hoc queries fail at run time
		// with a connection error.
		log.Print("FABRIC_PG_DSN not set, using in-memory stores")
		authzStore = authz.NewInMemory()
		auditStore = audit.NewInMemory()
		recordStore = gateway.NewInMemoryRecords()
		roDSN = "postgres://localhost:5432/fabric"
	}

	readDB, err := pg.OpenReadOnly(roDSN, envInt("FABRIC_RO_MAX_CONNS", 10))
	if err != nil {
		log.Fatalf("open read-only pool: %v", err)
	}
	defer readDB.Close()

	chain, err := audit.NewChain(auditStore)
	if err != nil {
		log.Fatalf("audit chain: %v", err)
	}
	resolver, err := authz.NewResolver(authzStore, chain)
	if err != nil {
		log.Fatalf("resolver: %v", err)
	}
	validator := query.NewValidator(resolver.Matcher())

	gw, err := gateway.New(readDB, resolver, validator, chain, recordStore, gateway.Config{
		Timeout: envDuration("FABRIC_QUERY_TIMEOUT", 30*time.Second),
		MaxRows: envInt("FABRIC_QUERY_MAX_ROWS", 100),
	})
	if err != nil {
		log.Fatalf("gateway: %v", err)
	}

	api, err := httpapi.New(httpapi.Deps{
		Resolver: resolver,
		Users:    authzStore,
		Chain:    chain,
		Records:  auditStore,
		Gateway:  gw,
		Ready:    httpapi.ReadyProbe{DB: pingDB},
		Version:  version,
	})
	if err != nil {
		log.Fatalf("api: %v", err)
	}

	addr := os.Getenv("FABRIC_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting fabric security core %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	log.Println("Stopped")
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return v
}

func envDuration(name string, def time.Duration) time.Duration {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return v
}
