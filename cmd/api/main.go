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

	"paydesk.org/internal/auth"
	"paydesk.org/internal/httpapi"
	"paydesk.org/internal/obs"
	"paydesk.org/internal/rbac"
	"paydesk.org/internal/store/pg"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		store rbac.Store
		db    *sql.DB
	)
	if dsn := os.Getenv("PAYDESK_PG_DSN"); dsn != "" {
		pgStore, err := pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		store = pgStore
		db = pgStore.DB()
	} else {
		// Without a DSN the service runs on the in-memory store; useful
		// for local development, not for production.
		store = rbac.NewMemory()
		log.Printf("PAYDESK_PG_DSN not set, using in-memory store")
	}

	catalog, err := rbac.NewCatalog(store)
	if err != nil {
		log.Fatalf("catalog: %v", err)
	}
	registry, err := rbac.NewRegistry(store)
	if err != nil {
		log.Fatalf("registry: %v", err)
	}
	engine, err := rbac.NewAssignmentEngine(store, registry)
	if err != nil {
		log.Fatalf("assignment engine: %v", err)
	}
	authz, err := rbac.NewAuthorizer(store, engine)
	if err != nil {
		log.Fatalf("authorizer: %v", err)
	}

	var authOpts []auth.ServiceOption
	if secret := os.Getenv("PAYDESK_AUTH_SECRET"); secret != "" {
		authOpts = append(authOpts, auth.WithTokenSecret(secret))
	} else {
		log.Printf("PAYDESK_AUTH_SECRET not set, token issuance disabled")
	}
	if ttl := os.Getenv("PAYDESK_ACCESS_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			log.Fatalf("parse PAYDESK_ACCESS_TTL: %v", err)
		}
		authOpts = append(authOpts, auth.WithAccessTTL(d))
	}
	authSvc, err := auth.NewService(store, engine, authz, authOpts...)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}

	if os.Getenv("PAYDESK_BOOTSTRAP") != "false" {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		boot := rbac.Bootstrap{Catalog: catalog, Registry: registry}
		if err := boot.Run(ctx); err != nil {
			cancel()
			log.Fatalf("bootstrap rbac: %v", err)
		}
		cancel()
	}

	api := httpapi.New(httpapi.ReadyProbe{DB: db}, version, httpapi.Services{
		Auth:     authSvc,
		Catalog:  catalog,
		Registry: registry,
		Engine:   engine,
		Authz:    authz,
	})

	addr := os.Getenv("PAYDESK_HTTP_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting paydesk-api %s on %s", version, srv.Addr)

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
	if db != nil {
		_ = db.Close()
	}
	log.Println("Stopped")
}
