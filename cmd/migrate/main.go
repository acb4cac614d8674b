package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/angelmondragon/farmgate-checkout/pkg/config"
	"github.com/angelmondragon/farmgate-checkout/pkg/db"
	"github.com/angelmondragon/farmgate-checkout/pkg/logger"
	"github.com/angelmondragon/farmgate-checkout/pkg/migrate"
	"github.com/joho/godotenv"
)

type options struct {
	dir     string
	name    string
	version string
}

type command struct {
	offline func(options) (string, error)
	online  func(context.Context, *sql.DB, string, options) error
}

var commands = map[string]command{
	"create": {offline: func(o options) (string, error) {
		if o.name == "" {
			return "", fmt.Errorf("-name is required for create")
		}
		path, err := migrate.CreateSQLMigration(o.dir, o.name)
		return "created migration: " + path, err
	}},
	"validate": {offline: func(o options) (string, error) {
		return "migration validation passed", migrate.ValidateDir(o.dir)
	}},
	"up":     {online: gooseCommand("up")},
	"down":   {online: gooseCommand("down")},
	"status": {online: gooseCommand("status")},
	"version": {online: func(ctx context.Context, sqlDB *sql.DB, driver string, o options) error {
		if o.version == "" {
			return fmt.Errorf("-version is required for version")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, driver, o.dir, o.version)
	}},
}

func gooseCommand(name string) func(context.Context, *sql.DB, string, options) error {
	return func(ctx context.Context, sqlDB *sql.DB, driver string, o options) error {
		return migrate.Run(ctx, sqlDB, driver, o.dir, name)
	}
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmdName := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (create)")
	flag.StringVar(&opts.version, "version", "", "target version YYYYMMDDHHMMSS (version)")
	flag.Parse()

	cmd, ok := commands[*cmdName]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown -cmd %q, want one of %s\n", *cmdName, strings.Join(commandNames(), ", "))
		os.Exit(2)
	}

	// create and validate only touch files, so they run without config
	if cmd.offline != nil {
		msg, err := cmd.offline(opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s failed: %v\n", *cmdName, err)
			os.Exit(1)
		}
		fmt.Println(msg)
		return
	}

	cfg, err := config.Load()
	exitOnError(context.Background(), logg, "config", err)
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Environment: cfg.App.Env,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{
		"cmd": *cmdName,
		"dir": opts.dir,
		"db":  cfg.DB.Driver,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	exitOnError(ctx, logg, "database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.SQL()
	exitOnError(ctx, logg, "sql database", err)

	logg.Info(ctx, "running migration command")
	if err := cmd.online(ctx, sqlDB, cfg.DB.Driver, opts); err != nil {
		logg.Error(ctx, "migration command failed", err)
		dbClient.Close()
		os.Exit(1)
	}
	logg.Info(ctx, "migration command finished")
}

func commandNames() []string {
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func exitOnError(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "resource not working: "+resource, err)
	os.Exit(1)
}
