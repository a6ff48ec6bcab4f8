package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"

	"starchart/internal/config"
	"starchart/internal/notify"
	"starchart/internal/repository"
	"starchart/internal/security"
	"starchart/internal/service"
	"starchart/internal/telemetry"
)

func main() {
	if len(os.Args) < 2 || os.Args[1] == "help" || os.Args[1] == "-h" {
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if !cfg.Debug {
		log.SetFlags(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := telemetry.Setup(ctx, cfg.OTelEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(flushCtx); err != nil {
			log.Printf("Warning: failed to flush traces: %v", err)
		}
	}()

	if os.Args[1] == "hash-pin" {
		if err := hashPIN(os.Args[2:]); err != nil {
			log.Fatal(err)
		}
		return
	}

	repo, closeRepo, err := repository.Open(cfg)
	if err != nil {
		log.Fatalf("Failed to open repository: %v", err)
	}
	defer closeRepo()
	if cfg.UsesMemory() {
		log.Println("Using in-memory storage; nothing will be saved")
	} else if cfg.Debug {
		log.Printf("[DEBUG] Repository ready (type: %s)", cfg.DatabaseType)
	}

	notifier, err := notify.NewEmailNotifier(ctx, cfg.AWSRegion, cfg.SESFromEmail, cfg.SESFromName, cfg.ParentEmail, cfg.Debug)
	if err != nil {
		log.Fatalf("Failed to set up email notifications: %v", err)
	}

	svc := service.NewHouseholdService(repo, time.Now, security.NewPINGuard(cfg.ParentPINHash), notifier)
	if err := svc.LoadData(ctx); err != nil {
		log.Fatalf("Failed to load household data: %v", err)
	}

	app := &cli{
		svc:      svc,
		out:      os.Stdout,
		color:    isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd()),
		debounce: cfg.ProjectionDebounce,
	}
	if err := app.run(ctx, os.Args[1], os.Args[2:]); err != nil {
		log.Fatalf("%s: %v", os.Args[1], err)
	}
}

func hashPIN(args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("usage: starchart hash-pin <pin>")
	}
	hash, err := security.HashPIN(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("PARENT_PIN_HASH='%s'\n", hash)
	return nil
}

func printUsage() {
	fmt.Println("Starchart household points tracker")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  starchart <command> [options]")
	fmt.Println()
	fmt.Println("Children:")
	fmt.Println("  add-child -name <name> [-age <years>]")
	fmt.Println("  children [-all]")
	fmt.Println("  archive-child -child <name|id> [-undo]")
	fmt.Println()
	fmt.Println("Behaviors:")
	fmt.Println("  seed-behaviors")
	fmt.Println("  add-behavior -name <name> -category positive|negative|routinePositive -points <n> [-monetized]")
	fmt.Println("  behaviors [-age <years>]")
	fmt.Println("  log -child <name|id> -behavior <name|id> [-points <n>] [-goal <id>] [-note <text>]")
	fmt.Println("  events -child <name|id> [-limit <n>]")
	fmt.Println("  edit-event -event <id> [-points <n>] [-note <text>]")
	fmt.Println("  delete-event -event <id>")
	fmt.Println("  moment -event <id> -caption <text>")
	fmt.Println()
	fmt.Println("Goals:")
	fmt.Println("  add-goal -child <name|id> -name <name> -target <points> [-due YYYY-MM-DD]")
	fmt.Println("  goals -child <name|id>")
	fmt.Println("  primary -goal <id>")
	fmt.Println("  redeem -goal <id> [-force]")
	fmt.Println()
	fmt.Println("Agreements and allowance:")
	fmt.Println("  sign -child <name|id> -role child|parent [-pin <pin>]")
	fmt.Println("  status -child <name|id>")
	fmt.Println("  payout -child <name|id> [-pin <pin>]")
	fmt.Println("  hash-pin <pin>")
	fmt.Println()
	fmt.Println("Dashboards:")
	fmt.Println("  dashboard [-child <name|id>]")
	fmt.Println("  watch [-child <name|id>]     Reprint the dashboard whenever data changes")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  DB_TYPE            sqlite, postgres, mysql or memory (default: sqlite)")
	fmt.Println("  DB_PATH            SQLite database path (default: ./starchart.db)")
	fmt.Println("  DATABASE_URL       PostgreSQL or MySQL connection URL")
	fmt.Println("  PARENT_PIN_HASH    bcrypt hash required for parent signatures and payouts")
	fmt.Println("  SES_FROM_EMAIL     Sender for celebration emails (disabled when empty)")
	fmt.Println("  PARENT_EMAIL       Recipient for celebration emails")
}
