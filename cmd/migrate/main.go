package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/angelmondragon/tixmarket-backend/pkg/config"
	"github.com/angelmondragon/tixmarket-backend/pkg/db"
	"github.com/angelmondragon/tixmarket-backend/pkg/logger"
	"github.com/angelmondragon/tixmarket-backend/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
}

type command struct {
	needsDB bool
	run     func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error)
}

var commands = map[string]command{
	"create": {run: func(_ context.Context, _ *sql.DB, opts options) (string, error) {
		if opts.name == "" {
			return "", fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return "", err
		}
		return "created " + path, nil
	}},
	"validate": {run: func(_ context.Context, _ *sql.DB, opts options) (string, error) {
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return "", err
		}
		return "migrations valid", nil
	}},
	"up":     gooseCommand("up"),
	"down":   gooseCommand("down"),
	"status": gooseCommand("status"),
	"version": {needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error) {
		if opts.version == "" {
			return "", fmt.Errorf("-version is required for version")
		}
		if err := migrate.MigrateToVersion(ctx, sqlDB, opts.dir, opts.version); err != nil {
			return "", err
		}
		return "database at version " + opts.version, nil
	}},
}

func gooseCommand(name string) command {
	return command{needsDB: true, run: func(ctx context.Context, sqlDB *sql.DB, opts options) (string, error) {
		return "", migrate.Run(ctx, sqlDB, opts.dir, name)
	}}
}

func commandNames() string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, "|")
}

func main() {
	_ = godotenv.Load()

	var opts options
	cmdName := flag.String("cmd", "up", "migration command: "+commandNames())
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "migrations directory (the default runs the embedded copy)")
	flag.StringVar(&opts.name, "name", "", "migration name for -cmd=create")
	flag.StringVar(&opts.version, "version", "", "target YYYYMMDDHHMMSS version for -cmd=version")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q (want %s)\n", *cmdName, commandNames())
		os.Exit(2)
	}

	logg := logger.New(logger.Options{ServiceName: "migrate"})
	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       cfg.App.LogLevel,
		WarnStack:   cfg.App.LogWarnStack,
		Format:      cfg.App.LogFormat,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": *cmdName,
		"dir": opts.dir,
	})

	var sqlDB *sql.DB
	if cmd.needsDB {
		dbClient, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			logg.Error(ctx, "failed to connect to database", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		if sqlDB, err = dbClient.SQL(); err != nil {
			logg.Error(ctx, "failed to extract sql.DB", err)
			os.Exit(1)
		}
	}

	msg, err := cmd.run(ctx, sqlDB, opts)
	if err != nil {
		logg.Error(ctx, "migration command failed", err)
		os.Exit(1)
	}
	if msg != "" {
		fmt.Println(msg)
	}
	logg.Info(ctx, "migration command complete")
}
