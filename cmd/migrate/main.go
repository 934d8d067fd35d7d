package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"fenceline.dev/internal/migrate"
)

func main() {
	log.SetFlags(0)
	dsn := flag.String("dsn", os.Getenv("FENCELINE_PG_DSN"), "PostgreSQL DSN")
	flag.Parse()

	if *dsn == "" {
		log.Fatal("missing DSN: provide via -dsn or FENCELINE_PG_DSN")
	}
	if len(flag.Args()) == 0 {
		log.Fatal("usage: migrate [up|down|status]")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()

	runner := migrate.New(db)

	switch flag.Arg(0) {
	case "up":
		var ran []string
		ran, err = runner.Up(ctx)
		if err == nil {
			for _, name := range ran {
				log.Printf("applied %s", name)
			}
			if len(ran) == 0 {
				log.Print("nothing to apply")
			}
		}
	case "down":
		err = runner.Down(ctx)
	case "status":
		var history []string
		history, err = runner.Status(ctx)
		if err == nil {
			for _, item := range history {
				fmt.Println(item)
			}
		}
	default:
		log.Fatalf("unknown command %q", flag.Arg(0))
	}
	if err != nil {
		log.Fatalf("migrate %s: %v", flag.Arg(0), err)
	}
}
