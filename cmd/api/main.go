package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"worklane.org/internal/auth"
	"worklane.org/internal/directory"
	"worklane.org/internal/email"
	"worklane.org/internal/httpapi"
	"worklane.org/internal/invite"
	"worklane.org/internal/obs"
	"worklane.org/internal/rbac"
	"worklane.org/internal/store/pg"
	"worklane.org/internal/token"
)

var (
	version = "0.3.0"
	commit  = "dev"
)

func main() {
	_ = godotenv.Load()

	obs.Init()
	obs.InitBuildInfo(version, commit)

	dsn := os.Getenv("WORKLANE_PG_DSN")
	if dsn == "" {
		log.Fatal("WORKLANE_PG_DSN is required")
	}
	store, err := pg.Open(dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}

	baseURL := os.Getenv("WORKLANE_BASE_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	addr := os.Getenv("WORKLANE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	issuer := token.NewIssuer()
	mail := email.LogDispatcher{}

	authSvc, err := auth.NewService(store, issuer, mail, baseURL)
	if err != nil {
		log.Fatalf("auth service: %v", err)
	}
	rbacSvc, err := rbac.NewService(store)
	if err != nil {
		log.Fatalf("rbac service: %v", err)
	}
	inviteSvc, err := invite.NewService(store, issuer, mail, baseURL)
	if err != nil {
		log.Fatalf("invite service: %v", err)
	}
	dirSvc, err := directory.NewService(store)
	if err != nil {
		log.Fatalf("directory service: %v", err)
	}

	// Idempotent: a no-op once any permission row exists.
	seedCtx, seedCancel := context.WithTimeout(context.Background(), 30*time.Second)
	seeded, err := rbacSvc.SeedDefaultPermissions(seedCtx)
	seedCancel()
	if err != nil {
		log.Fatalf("seed permissions: %v", err)
	}
	if seeded > 0 {
		log.Printf("seeded %d default permissions", seeded)
	}

	api := httpapi.New(httpapi.Config{
		Auth:      authSvc,
		RBAC:      rbacSvc,
		Invites:   inviteSvc,
		Directory: dirSvc,
		Ready:     httpapi.ReadyProbe{DB: store.DB()},
		Version:   version,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting worklane-api %s on %s", version, srv.Addr)

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
	_ = store.Close()
	log.Println("Stopped")
}
