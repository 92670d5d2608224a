package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"paydesk.org/internal/migrate"
)

const usageText = `usage: migrate [flags] <command>

Commands:
  up       apply pending migrations in lexical order
  down     roll back the most recent migration
  seed     apply seed files not yet recorded
  status   print applied migrations
  pending  print migrations not yet applied

Flags:
`

func main() {
	log.SetFlags(0)
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatal(err)
	}
}

func run(args []string, out io.Writer) error {
	fs := flag.NewFlagSet("migrate", flag.ExitOnError)
	dsn := fs.String("dsn", os.Getenv("PAYDESK_PG_DSN"), "PostgreSQL DSN")
	migrationsPath := fs.String("migrations", "ops/migrations/sql", "Path to SQL migrations")
	seedsPath := fs.String("seeds", "ops/migrations/seeds", "Path to SQL seeds")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall command timeout")
	fs.Usage = func() {
		fmt.Fprint(fs.Output(), usageText)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	if fs.NArg() == 0 {
		fs.Usage()
		return errors.New("missing command")
	}
	if *dsn == "" {
		return errors.New("missing DSN: provide via -dsn or PAYDESK_PG_DSN")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	db, err := sql.Open("pgx", *dsn)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	mgr := migrate.NewManager(db, *migrationsPath, *seedsPath)

	cmd := fs.Arg(0)
	switch cmd {
	case "up":
		err = mgr.Up(ctx)
	case "down":
		err = mgr.Down(ctx)
	case "seed":
		err = mgr.Seed(ctx)
	case "status":
		var applied []string
		if applied, err = mgr.Status(ctx); err == nil {
			for _, name := range applied {
				fmt.Fprintln(out, name)
			}
		}
	case "pending":
		files, perr := mgr.Pending(ctx)
		if perr == nil {
			for _, f := range files {
				fmt.Fprintln(out, f.Base)
			}
		}
		err = perr
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err != nil {
		return fmt.Errorf("migrate %s: %w", cmd, err)
	}
	return nil
}
