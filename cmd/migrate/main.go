package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/storage/postgres"
)

// options описывает разобранные аргументы утилиты миграций.
type options struct {
	command string
	steps   int
	dsn     string
	timeout time.Duration
}

func parseOptions() (options, error) {
	var opts options

	flag.StringVar(&opts.command, "direction", "up", "команда миграции: up|down|status")
	flag.IntVar(&opts.steps, "steps", 0, "сколько миграций применить/откатить (0 = все для up, 1 для down)")
	flag.StringVar(&opts.dsn, "dsn", "", "DSN PostgreSQL витрины (по умолчанию берётся из POSTGRES_DSN)")
	flag.DurationVar(&opts.timeout, "timeout", 30*time.Second, "таймаут на выполнение миграций")
	flag.Parse()

	opts.command = strings.ToLower(strings.TrimSpace(opts.command))
	if strings.TrimSpace(opts.dsn) == "" {
		opts.dsn = strings.TrimSpace(os.Getenv("POSTGRES_DSN"))
	}
	if opts.dsn == "" {
		return opts, fmt.Errorf("не задан DSN базы: укажите -dsn или переменную POSTGRES_DSN")
	}
	return opts, nil
}

func main() {
	opts, err := parseOptions()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if err := run(opts); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(opts options) error {
	ctx, cancel := context.WithTimeout(context.Background(), opts.timeout)
	defer cancel()

	store, err := postgres.Open(ctx, opts.dsn)
	if err != nil {
		return fmt.Errorf("подключение к postgres: %w", err)
	}
	defer store.Close()

	switch opts.command {
	case "up":
		if err := store.MigrateUp(ctx, opts.steps); err != nil {
			return fmt.Errorf("применение миграций: %w", err)
		}
		return report(ctx, store, "схема витрины обновлена")
	case "down":
		steps := opts.steps
		if steps <= 0 {
			steps = 1
		}
		if err := store.MigrateDown(ctx, steps); err != nil {
			return fmt.Errorf("откат миграций: %w", err)
		}
		return report(ctx, store, "схема витрины откатена")
	case "status":
		return report(ctx, store, "текущее состояние схемы")
	default:
		return fmt.Errorf("неизвестная команда %q: доступны up, down, status", opts.command)
	}
}

// report печатает текущую версию схемы и число применённых миграций.
func report(ctx context.Context, store *postgres.Store, label string) error {
	version, applied, err := store.MigrationStatus(ctx)
	if err != nil {
		return fmt.Errorf("чтение состояния миграций: %w", err)
	}
	fmt.Printf("%s: версия=%d применено=%d\n", label, version, applied)
	return nil
}
