package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/pkanduri1/fabric-platform-sub006/internal/migrate"
	"github.com/pkanduri1/fabric-platform-sub006/internal/store/pg"
)

func main() {
	var (
		dsn        = flag.String("dsn", os.Getenv("FABRIC_PG_DSN"), "postgres dsn (defaults to FABRIC_PG_DSN)")
		migrations = flag.String("migrations", "migrations", "path to migration files")
		seeds      = flag.String("seeds", "migrations/seeds", "path to seed files")
	)
	flag.Parse()

	if *dsn == "" {
		fatal("missing -dsn (or FABRIC_PG_DSN)")
	}
	cmd := flag.Arg(0)
	if cmd == "" {
		cmd = "up"
	}

	store, err := pg.Open(*dsn)
	if err != nil {
		fatal("open database: %v", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	mgr := migrate.NewManager(store.DB(), *migrations, *seeds)

	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var applied []string
		applied, err = mgr.Status(ctx)
		if err == nil {
			if len(applied) == 0 {
				fmt.Println("no migrations applied")
			}
			for _, name := range applied {
				fmt.Println(name)
			}
		}
	default:
		fatal("unknown command %q (want up, down, seed or status)", cmd)
	}
	if err != nil {
		fatal("%s: %v", cmd, err)
	}
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
