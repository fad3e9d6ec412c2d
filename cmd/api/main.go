package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"authgate.org/internal/config"
	"authgate.org/internal/httpapi"
	"authgate.org/internal/obs"
	"authgate.org/internal/session"
	"authgate.org/internal/store/pg"
	"authgate.org/internal/token"
	"authgate.org/internal/user"
)

var version = "0.3.1"

func main() {
	obs.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	codec, err := token.NewCodec(cfg.AuthSecret, token.WithIssuer(cfg.Issuer))
	if err != nil {
		log.Fatalf("token codec: %v", err)
	}

	var (
		users    user.Store
		registry session.Registry
		ledger   session.Ledger
		probe    httpapi.ReadyProbe
		store    *pg.Store
	)
	if cfg.PGDSN != "" {
		store, err = pg.Open(cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		users = store
		sessions := store.Sessions()
		registry = sessions
		ledger = sessions
		probe = httpapi.ReadyProbe{Store: store}
	} else {
		log.Printf("AUTHGATE_PG_DSN is not set, using in-memory stores (data is lost on restart)")
		mem := session.NewInMemory()
		users = user.NewInMemory()
		registry = mem
		ledger = mem
	}

	manager := session.NewManager(users, codec, registry, ledger,
		session.WithAccessTTL(cfg.AccessTokenTTL))

	api := httpapi.New(manager, probe, version)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting authgate-api %s on %s", version, srv.Addr)

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
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}
