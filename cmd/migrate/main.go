// Command migrate applies or rolls back the application's schema migrations.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/tellusko/tellusko/internal/database"
)

func main() {
	path := flag.String("path", "migrations", "path to migration files")
	down := flag.Bool("down", false, "roll back the most recent migration instead of migrating up")
	flag.Parse()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		fmt.Fprintln(os.Stderr, "error: DATABASE_URL is required")
		os.Exit(2)
	}

	cfg := database.MigrationConfig{
		DatabaseURL:    databaseURL,
		MigrationsPath: *path,
	}

	if *down {
		if err := database.Rollback(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("rolled back one migration")
		return
	}

	if err := database.RunMigrations(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}
