package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/darrenwu-git/snap-ledger/internal/backup"
	"github.com/darrenwu-git/snap-ledger/internal/config"
	"github.com/darrenwu-git/snap-ledger/internal/domain"
	"github.com/darrenwu-git/snap-ledger/internal/ledger"
	"github.com/darrenwu-git/snap-ledger/internal/logger"
	"github.com/darrenwu-git/snap-ledger/internal/store"
	"github.com/darrenwu-git/snap-ledger/internal/store/local"
	"github.com/darrenwu-git/snap-ledger/internal/store/remote"
	"github.com/darrenwu-git/snap-ledger/internal/voice"
)

func main() {
	log := logger.New()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "add":
		runAdd(log)
	case "list":
		runList(log)
	case "categories":
		runCategories(log)
	case "export":
		runExport(log)
	case "import":
		runImport(log)
	case "voice":
		runVoice(log)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Snap Ledger CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  cli <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  add         Record a transaction")
	fmt.Println("  list        List transactions")
	fmt.Println("  categories  List categories")
	fmt.Println("  export      Export a backup bundle")
	fmt.Println("  import      Import and reconcile a backup bundle")
	fmt.Println("  voice       Record a transaction from an audio file")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nAdd -user USER_ID to any command to work against the remote store.")
	fmt.Println("Run 'cli <command> -h' for more information on a command.")
}

// openLedger builds the ledger in local or remote mode depending on -user.
// The returned cleanup must run before exit.
func openLedger(ctx context.Context, cfg config.Config, userID string, log zerolog.Logger) (*ledger.Ledger, func(), error) {
	localStore, err := local.Open(local.DefaultConfig(cfg.DBPath), log)
	if err != nil {
		return nil, nil, err
	}
	cleanup := func() { _ = localStore.Close() }

	var factory store.RemoteFactory
	if userID != "" {
		if err := cfg.RequireRemote(); err != nil {
			cleanup()
			return nil, nil, err
		}
		client, err := bigquery.NewClient(ctx, cfg.Project)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create bigquery client: %w", err)
		}
		prev := cleanup
		cleanup = func() { _ = client.Close(); prev() }
		factory = func(uid string) store.Store {
			return remote.New(client, cfg.Project, cfg.Dataset, uid, log)
		}
	}

	sel := store.NewSelector(localStore, factory)
	if userID != "" {
		sel.SetIdentity(&store.Identity{UserID: userID})
	}

	led := ledger.New(sel, log)
	if err := led.Load(ctx); err != nil {
		cleanup()
		return nil, nil, err
	}
	return led, cleanup, nil
}

func runAdd(log zerolog.Logger) {
	fs := flag.NewFlagSet("add", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	amount := fs.String("amount", "", "Amount, e.g. 12.50")
	kind := fs.String("type", "expense", "expense or income")
	category := fs.String("category", "", "Category ID")
	date := fs.String("date", time.Now().Format(domain.DateFormat), "Date (YYYY-MM-DD)")
	note := fs.String("note", "", "Optional note")
	draft := fs.Bool("draft", false, "Record as a draft")
	fs.Parse(os.Args[2:])

	if *amount == "" {
		log.Fatal().Msg("Error: -amount is required")
	}
	amt, err := decimal.NewFromString(*amount)
	if err != nil || amt.IsNegative() {
		log.Fatal().Str("amount", *amount).Msg("Error: -amount must be a non-negative decimal")
	}

	ctx := logger.WithContext(context.Background(), log)
	cfg := config.Load()

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	status := domain.StatusCompleted
	if *draft {
		status = domain.StatusDraft
	}

	t, err := led.AddTransaction(ctx, domain.Transaction{
		Amount:     amt,
		Kind:       domain.Kind(*kind),
		CategoryID: *category,
		Date:       *date,
		Note:       *note,
		Status:     status,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Add failed")
	}
	fmt.Printf("Recorded %s (%s)\n", t.ID, t.Status)
}

func runList(log zerolog.Logger) {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	cfg := config.Load()

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	for _, t := range led.Transactions() {
		name := "(uncategorized)"
		if c, ok := led.Category(t.CategoryID); ok {
			name = c.Name
		}
		fmt.Printf("%s  %-8s %10s  %-12s %s  %s\n", t.Date, t.Kind, t.Amount.StringFixed(2), name, t.Status, t.Note)
	}
}

func runCategories(log zerolog.Logger) {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	cfg := config.Load()

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	for _, c := range led.Categories() {
		fmt.Printf("%s  %s %-12s %s\n", c.ID, c.Icon, c.Name, c.Kind)
	}
}

func runExport(log zerolog.Logger) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	out := fs.String("out", "", "Output file (default stdout)")
	toGCS := fs.Bool("gcs", false, "Upload the bundle to the configured bucket")
	fs.Parse(os.Args[2:])

	ctx := logger.WithContext(context.Background(), log)
	cfg := config.Load()

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	bundle := led.Export()

	if *toGCS {
		if cfg.Bucket == "" {
			log.Fatal().Msg("Error: SNAP_LEDGER_BUCKET is required for -gcs")
		}
		uri, err := backup.Upload(ctx, cfg.Bucket, backup.ObjectName(time.Now()), bundle)
		if err != nil {
			log.Fatal().Err(err).Msg("Upload failed")
		}
		fmt.Printf("Exported to %s\n", uri)
		return
	}

	data, err := bundle.Encode()
	if err != nil {
		log.Fatal().Err(err).Msg("Encode failed")
	}
	if *out == "" {
		fmt.Println(string(data))
		return
	}
	if err := os.WriteFile(*out, data, 0o644); err != nil {
		log.Fatal().Err(err).Msg("Write failed")
	}
	fmt.Printf("Exported %d transactions, %d categories to %s\n", len(bundle.Transactions), len(bundle.Categories), *out)
}

func runImport(log zerolog.Logger) {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	in := fs.String("in", "", "Bundle file to import")
	gcsURI := fs.String("gcs-uri", "", "GCS URI of a bundle to import")
	fs.Parse(os.Args[2:])

	if (*in == "") == (*gcsURI == "") {
		log.Fatal().Msg("Error: exactly one of -in or -gcs-uri is required")
	}

	ctx := logger.WithContext(context.Background(), log)
	cfg := config.Load()

	var bundle backup.Bundle
	var err error
	if *gcsURI != "" {
		bundle, err = backup.Fetch(ctx, *gcsURI)
	} else {
		var data []byte
		data, err = os.ReadFile(*in)
		if err == nil {
			bundle, err = backup.Decode(data)
		}
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read bundle")
	}

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	res := led.Import(ctx, bundle)
	fmt.Printf("Merged: %d transactions, %d categories changed\n", res.TransactionsChanged, res.CategoriesChanged)
	if !res.FullyPersisted() {
		if res.CategoryErr != nil {
			fmt.Printf("Warning: categories were not fully persisted: %v\n", res.CategoryErr)
		}
		if res.TransactionErr != nil {
			fmt.Printf("Warning: transactions were not fully persisted: %v\n", res.TransactionErr)
		}
		os.Exit(1)
	}
}

func runVoice(log zerolog.Logger) {
	fs := flag.NewFlagSet("voice", flag.ExitOnError)
	user := fs.String("user", "", "User ID for remote mode")
	audioPath := fs.String("audio", "", "Path to the recorded audio file")
	mime := fs.String("mime", "audio/webm", "Audio MIME type")
	fs.Parse(os.Args[2:])

	if *audioPath == "" {
		log.Fatal().Msg("Error: -audio is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	cfg := config.Load()
	if err := cfg.RequireGemini(); err != nil {
		log.Fatal().Err(err).Msg("Voice entry unavailable")
	}

	audio, err := os.ReadFile(*audioPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read audio file")
	}

	led, cleanup, err := openLedger(ctx, cfg, *user, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open ledger")
	}
	defer cleanup()

	parser, err := voice.NewParser(cfg.GeminiAPIKey)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create voice parser")
	}

	intent, err := parser.Parse(ctx, audio, *mime, led.Categories())
	if err != nil {
		log.Fatal().Err(err).Msg("Voice extraction failed")
	}

	if intent.Candidate == nil {
		fmt.Printf("%s: %s\n", intent.Kind, intent.Message)
		return
	}

	t, err := led.AddTransaction(ctx, intent.Candidate.Transaction())
	if err != nil {
		log.Fatal().Err(err).Msg("Add failed")
	}
	fmt.Printf("Recorded %s (%s, confidence %.2f)\n", t.ID, t.Status, intent.Candidate.Confidence)
}
