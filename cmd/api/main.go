package main

import (
	"context"
	"database/sql"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fenceline.dev/internal/auth"
	"fenceline.dev/internal/config"
	"fenceline.dev/internal/httpapi"
	"fenceline.dev/internal/obs"
	"fenceline.dev/internal/resource"
	"fenceline.dev/internal/scope"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	obs.Init()
	obs.InitBuildInfo(version, commit)

	var (
		db    *sql.DB
		dir   auth.Directory
		store resource.Store
	)
	if cfg.PGDSN != "" {
		db, err = sql.Open("pgx", cfg.PGDSN)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(10)
		db.SetConnMaxLifetime(30 * time.Minute)
		dir = auth.NewPGDirectory(db)
		store, err = resource.NewPGStore(db, "posts")
		if err != nil {
			log.Fatalf("open posts store: %v", err)
		}
	} else {
		log.Print("no database configured, using in-memory stores")
		mem := auth.NewMemoryDirectory()
		devFixture(mem)
		dir = mem
		store = resource.NewMemory()
	}

	var issuer *auth.Issuer
	var pipeline *scope.Pipeline
	if cfg.Auth.Secret != "" {
		codec, err := auth.NewCodec(cfg.Auth.Secret, cfg.Auth.Issuer,
			auth.WithTokenTTL(cfg.Auth.TokenTTL))
		if err != nil {
			log.Fatalf("token codec: %v", err)
		}
		issuer, err = auth.NewIssuer(codec, dir)
		if err != nil {
			log.Fatalf("issuer: %v", err)
		}
		resolver, err := auth.NewResolver(codec, dir)
		if err != nil {
			log.Fatalf("resolver: %v", err)
		}
		pipeline, err = scope.New(resolver, store)
		if err != nil {
			log.Fatalf("pipeline: %v", err)
		}
	} else {
		log.Print("no auth secret configured, token issuance disabled")
	}

	ready := func(ctx context.Context) error {
		if db == nil {
			return nil
		}
		return db.PingContext(ctx)
	}

	api := httpapi.New(ready, version, issuer, pipeline, cfg.Limits)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("starting fenceline-api %s on %s", version, srv.Addr)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Print("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if db != nil {
		_ = db.Close()
	}
	log.Print("stopped")
}

// devFixture seeds the in-memory directory with a demo user bound to
// two accounts so the issuance and scoping flows can be exercised
// without a database.
func devFixture(dir *auth.MemoryDirectory) {
	hash, err := auth.HashPassword("demo")
	if err != nil {
		log.Fatalf("hash fixture password: %v", err)
	}
	user := dir.AddUser(auth.User{
		Email:        "demo@example.com",
		PasswordHash: hash,
		Status:       auth.UserStatusActive,
	})
	first := dir.AddAccount(auth.Account{Name: "first-account"})
	second := dir.AddAccount(auth.Account{Name: "second-account"})
	dir.Grant(auth.Permission{UserID: user.ID, AccountID: first.ID})
	dir.Grant(auth.Permission{UserID: user.ID, AccountID: second.ID, CreatedAt: time.Now().Add(time.Minute)})
	log.Printf("dev fixture: demo@example.com / demo bound to account %s", first.ID)
}
