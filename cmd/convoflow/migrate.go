package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/BaSui01/convoflow/internal/migration"
)

// =============================================================================
// 🗄️ migrate 命令
// =============================================================================

func runMigrate(args []string) {
	if len(args) < 1 {
		printMigrateUsage()
		os.Exit(1)
	}

	switch args[0] {
	case "up":
		runMigrateUp(args[1:])
	case "down":
		runMigrateDown(args[1:])
	case "version":
		runMigrateVersion(args[1:])
	case "help", "-h", "--help":
		printMigrateUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown migrate subcommand: %s\n", args[0])
		printMigrateUsage()
		os.Exit(1)
	}
}

func printMigrateUsage() {
	fmt.Println(`Archive Database Migration Commands

Usage:
  convoflow migrate <subcommand> [options]

Subcommands:
  up        Apply all pending migrations
  down      Rollback the last migration
  version   Show current migration version
  help      Show this help message

Options:
  --config <path>   Path to configuration file (YAML)

Examples:
  convoflow migrate up
  convoflow migrate up --config /etc/convoflow/config.yaml
  convoflow migrate down
  convoflow migrate version`)
}

// createMigrator 从配置构造迁移器，仅关系型归档后端支持
func createMigrator(name string, args []string) migration.Migrator {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	migrator, err := migration.FromArchiveConfig(cfg.Archive)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create migrator: %v\n", err)
		os.Exit(1)
	}
	return migrator
}

func runMigrateUp(args []string) {
	migrator := createMigrator("migrate up", args)
	defer migrator.Close()

	if err := migrator.Up(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("migrations applied")
}

func runMigrateDown(args []string) {
	migrator := createMigrator("migrate down", args)
	defer migrator.Close()

	if err := migrator.Down(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Migration rollback failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("last migration rolled back")
}

func runMigrateVersion(args []string) {
	migrator := createMigrator("migrate version", args)
	defer migrator.Close()

	version, dirty, err := migrator.Version(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to get version: %v\n", err)
		os.Exit(1)
	}
	if version == 0 {
		fmt.Println("no migrations applied")
		return
	}
	fmt.Printf("version %d (dirty: %v)\n", version, dirty)
}
