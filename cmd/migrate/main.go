// cmd/migrate/main.go applies or rolls back the embedded schema.
//
//	migrate up          apply everything pending
//	migrate down        roll back everything
//	migrate steps N     apply (N > 0) or roll back (N < 0) N migrations
//	migrate version     print the current version
package main

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/golang-migrate/migrate/v4"
	"github.com/jason-s-yu/peerplay/internal/config"
	"github.com/jason-s-yu/peerplay/internal/database"
	_ "github.com/joho/godotenv/autoload"
)

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: migrate up|down|steps N|version")
		os.Exit(2)
	}
	cfg, err := config.Load(os.Getenv("PEERPLAY_CONFIG"))
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	m, err := database.NewMigrator(cfg.Database.DSN())
	if err != nil {
		log.Fatal(err)
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		err = m.Up()
	case "down":
		err = m.Down()
	case "steps":
		if len(os.Args) != 3 {
			log.Fatal("steps needs a count")
		}
		n, convErr := strconv.Atoi(os.Args[2])
		if convErr != nil || n == 0 {
			log.Fatalf("invalid step count %q", os.Args[2])
		}
		err = m.Steps(n)
	case "version":
		v, dirty, verr := m.Version()
		if errors.Is(verr, migrate.ErrNilVersion) {
			fmt.Println("no migrations applied")
			return
		}
		if verr != nil {
			log.Fatal(verr)
		}
		fmt.Printf("version %d (dirty=%v)\n", v, dirty)
		return
	default:
		log.Fatalf("unknown command %q", os.Args[1])
	}
	if errors.Is(err, migrate.ErrNoChange) {
		fmt.Println("no change")
		return
	}
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	fmt.Println("ok")
}
