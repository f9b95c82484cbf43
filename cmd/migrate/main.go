package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/loyalty-backend/pkg/config"
	"github.com/angelmondragon/loyalty-backend/pkg/db"
	"github.com/angelmondragon/loyalty-backend/pkg/logger"
	"github.com/angelmondragon/loyalty-backend/pkg/migrate"
)

func main() {
	cmd := flag.String("cmd", "up", "up|down|status|to|create|validate")
	dir := flag.String("dir", "", "read migrations from this directory instead of the embedded set")
	name := flag.String("name", "", "migration name for -cmd=create")
	version := flag.String("version", "", "target version (YYYYMMDDHHMMSS) for -cmd=to")
	flag.Parse()

	_ = godotenv.Load()
	logg := logger.New(logger.Options{ServiceName: "migrate"})

	// file-only commands run without config or a database
	switch *cmd {
	case "create":
		target := *dir
		if target == "" {
			target = migrate.DefaultDir
		}
		path, err := migrate.CreateSQLMigration(target, *name)
		exitOn(err, "create migration")
		fmt.Println("created", path)
		return
	case "validate":
		exitOn(migrate.ValidateFS(migrate.Source(*dir)), "validate migrations")
		fmt.Println("migrations valid")
		return
	}

	cfg, err := config.Load()
	exitOn(err, "load config")
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": *cmd})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOn(err, "connect database")
	defer dbClient.Close()
	sqlDB, err := dbClient.DB().DB()
	exitOn(err, "extract sql.DB")

	m, err := migrate.New(sqlDB, migrate.Source(*dir))
	exitOn(err, "open migrator")

	switch *cmd {
	case "up":
		n, err := m.Up(ctx)
		exitOn(err, "migrate up")
		logg.Info(logg.WithField(ctx, "applied", n), "loyalty schema up to date")
	case "down":
		exitOn(m.Down(ctx), "migrate down")
		logg.Info(ctx, "rolled back one migration")
	case "to":
		if *version == "" {
			exitOn(fmt.Errorf("-version is required"), "migrate to")
		}
		exitOn(m.To(ctx, *version), "migrate to")
		logg.Info(logg.WithField(ctx, "version", *version), "schema moved to version")
	case "status":
		rows, err := m.Status(ctx)
		exitOn(err, "migration status")
		printStatus(rows)
	default:
		exitOn(fmt.Errorf("unknown -cmd %q", *cmd), "migrate")
	}
}

func printStatus(rows []migrate.Status) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tAPPLIED AT\tFILE")
	for _, row := range rows {
		applied := "pending"
		if row.Applied {
			applied = row.AppliedAt.UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", row.Version, applied, row.File)
	}
	_ = w.Flush()
}

func exitOn(err error, what string) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", what, err)
	os.Exit(1)
}
