// Command sweep flips pending invitations whose expiry has passed to the
// expired status. Run it once (cron) or with -interval for a resident loop.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"worklane.org/internal/email"
	"worklane.org/internal/invite"
	"worklane.org/internal/store/pg"
	"worklane.org/internal/token"
)

func main() {
	_ = godotenv.Load()

	var (
		dsn      = flag.String("dsn", os.Getenv("WORKLANE_PG_DSN"), "Postgres DSN")
		interval = flag.Duration("interval", 0, "sweep repeatedly at this interval (0 = run once)")
	)
	flag.Parse()

	if *dsn == "" {
		log.Fatal("dsn is required (flag -dsn or WORKLANE_PG_DSN)")
	}
	store, err := pg.Open(*dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer store.Close()

	svc, err := invite.NewService(store, token.NewIssuer(), email.LogDispatcher{}, "")
	if err != nil {
		log.Fatalf("invite service: %v", err)
	}

	if *interval <= 0 {
		sweep(svc)
		return
	}

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	sweep(svc)
	for {
		select {
		case <-ticker.C:
			sweep(svc)
		case <-stop:
			log.Println("Stopped")
			return
		}
	}
}

func sweep(svc *invite.Service) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := svc.SweepExpired(ctx)
	if err != nil {
		log.Printf("sweep failed: %v", err)
		return
	}
	if n > 0 {
		log.Printf("expired %d invitations", n)
	}
}
