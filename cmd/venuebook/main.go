package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

const usage = `usage: venuebook [-config path] <command> [flags]

commands:
  submit      submit a booking request
  pending     list pending requests
  list        list bookings [-club name]
  show        show a booking with its conflicts
  check       check whether a venue is free
  conflicts   list active bookings overlapping a slot
  suggest     list free venues by category
  slots       list fixed-length slots of a venue
  approve     approve a pending request
  reject      reject a pending request
  log         print the booking log
  export      write an .xlsx audit export
  backup      copy the data files now
  serve       run metrics, health, backups and venue reload
`

var errUsage = errors.New("invalid usage")

func main() {
	// .env is optional
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		if errors.Is(err, errUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("venuebook", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", envOr("VENUEBOOK_CONFIG", "configs/config.yaml"), "path to config.yaml")
	if err := global.Parse(args); err != nil {
		return errUsage
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	name, rest := global.Arg(0), global.Args()[1:]
	cmd, ok := commands[name]
	if !ok {
		fmt.Fprintf(stderr, "unknown command %q\n\n", name)
		global.Usage()
		return errUsage
	}

	app, err := openApp(*configPath, stderr)
	if err != nil {
		return err
	}
	if !storeless[name] {
		if err := app.openStore(ctx); err != nil {
			return err
		}
	}
	defer func() {
		if cerr := app.Close(); cerr != nil {
			app.logger.Error().Err(cerr).Msg("Failed to close store")
		}
	}()

	return cmd(ctx, app, rest, stdout)
}

func newLogger(w io.Writer, level string, console bool) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	out := w
	if console {
		out = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).Level(lvl).With().Timestamp().Logger()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
