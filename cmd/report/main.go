package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-report-agent/internal/artifact"
	"github.com/dvloznov/finance-report-agent/internal/config"
	"github.com/dvloznov/finance-report-agent/internal/ledger"
	"github.com/dvloznov/finance-report-agent/internal/llm"
	"github.com/dvloznov/finance-report-agent/internal/logger"
	"github.com/dvloznov/finance-report-agent/internal/notionsync"
	"github.com/dvloznov/finance-report-agent/internal/pipeline"
	"github.com/dvloznov/finance-report-agent/internal/runlog"
	"github.com/dvloznov/finance-report-agent/internal/runlog/inmemory"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init", "run", "stage", "status", "publish":
	case "help", "-h", "--help":
		printUsage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		bootLog := logger.New()
		bootLog.Fatal().Err(err).Msg("Failed to load configuration")
	}
	log := logger.NewWithLevel(cfg.LogLevel)

	switch os.Args[1] {
	case "init":
		runInit(cfg, log)
	case "run":
		runPipeline(cfg, log)
	case "stage":
		runStage(cfg, log)
	case "status":
		runStatus(cfg, log)
	case "publish":
		runPublish(cfg, log)
	}
}

func printUsage() {
	fmt.Println("Finance Report Agent")
	fmt.Println("\nUsage:")
	fmt.Println("  report <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  init      Provision the artifact backend (BigQuery table)")
	fmt.Println("  run       Run the pipeline (plan, categorize, kpis, summarize, reflect)")
	fmt.Println("  stage     Run a single stage against the stored artifacts")
	fmt.Println("  status    Show which stage artifacts are present")
	fmt.Println("  publish   Publish the KPIs, summary and reflection to Notion")
	fmt.Println("  help      Show this help message")
	fmt.Println("\nConfiguration is read from the environment and an optional .env file.")
	fmt.Println("Run 'report <command> -h' for more information on a command.")
}

func runPipeline(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	from := fs.String("from", string(pipeline.StagePlan), "Stage to start from")
	kpiMode := fs.String("kpi-mode", cfg.KPIMode, "KPI derivation: model or local")
	ledgerPath := fs.String("ledger", cfg.Ledger.Path, "Path to the transaction ledger (.csv or .json)")
	fs.Parse(os.Args[2:])

	start, err := pipeline.ParseStage(*from)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -from")
	}
	cfg.KPIMode = strings.ToLower(*kpiMode)
	cfg.Ledger.Path = *ledgerPath
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)
	p, runs, closeFn := build(ctx, cfg, log)
	defer closeFn()

	report, err := p.Run(ctx, start)
	if report != nil {
		printRuns(ctx, runs, report.RunID)
	}
	if err != nil {
		closeFn()
		log.Fatal().Err(err).Str("kind", pipeline.Kind(err)).Msg("Pipeline failed")
	}

	fmt.Println("Pipeline completed successfully.")
}

func runStage(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("stage", flag.ExitOnError)
	name := fs.String("name", "", "Stage to run (plan, categorize, kpis, summarize, reflect)")
	kpiMode := fs.String("kpi-mode", cfg.KPIMode, "KPI derivation: model or local")
	fs.Parse(os.Args[2:])

	if *name == "" {
		log.Fatal().Msg("Error: -name is required")
	}
	stage, err := pipeline.ParseStage(*name)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid -name")
	}
	cfg.KPIMode = strings.ToLower(*kpiMode)
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx := logger.WithContext(context.Background(), log)
	p, _, closeFn := build(ctx, cfg, log)
	defer closeFn()

	res, err := p.RunStage(ctx, stage)
	if err != nil {
		closeFn()
		log.Fatal().Err(err).Str("kind", pipeline.Kind(err)).Msg("Stage failed")
	}

	fmt.Printf("Stage %s completed: wrote %d bytes to %s\n", res.Stage, res.Bytes, res.Slot.FileName())
}

func runInit(cfg *config.Config, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	store, closeStore, err := artifact.Open(ctx, cfg.Artifact)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	defer closeStore()

	ensurer, ok := store.(artifact.SchemaEnsurer)
	if !ok {
		fmt.Printf("Backend %s needs no provisioning.\n", cfg.Artifact.Backend)
		return
	}
	if err := ensurer.EnsureSchema(ctx); err != nil {
		closeStore()
		log.Fatal().Err(err).Msg("Failed to provision artifact backend")
	}
	fmt.Printf("Backend %s is ready.\n", cfg.Artifact.Backend)
}

func runStatus(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	slotName := fs.String("slot", "", "Only show this slot (plan, categorized, kpis, summary, reflection)")
	fs.Parse(os.Args[2:])

	slots := artifact.Slots
	if *slotName != "" {
		slot, err := artifact.ParseSlot(*slotName)
		if err != nil {
			log.Fatal().Err(err).Msg("Invalid -slot")
		}
		slots = []artifact.Slot{slot}
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	store, closeStore, err := artifact.Open(ctx, cfg.Artifact)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	defer closeStore()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "SLOT\tFILE\tSTATUS\tBYTES")
	for _, slot := range slots {
		content, err := store.Read(ctx, slot)
		switch {
		case err == nil:
			fmt.Fprintf(w, "%s\t%s\tpresent\t%d\n", slot, slot.FileName(), len(content))
		case isMissing(err):
			fmt.Fprintf(w, "%s\t%s\tmissing\t-\n", slot, slot.FileName())
		default:
			fmt.Fprintf(w, "%s\t%s\terror: %v\t-\n", slot, slot.FileName(), err)
		}
	}
	w.Flush()
}

func runPublish(cfg *config.Config, log zerolog.Logger) {
	fs := flag.NewFlagSet("publish", flag.ExitOnError)
	name := fs.String("name", cfg.Artifact.Namespace, "Report name (page title in Notion)")
	notionToken := fs.String("notion-token", cfg.Notion.Token, "Notion API token")
	notionDBID := fs.String("notion-db-id", cfg.Notion.DatabaseID, "Notion database ID")
	dryRun := fs.Bool("dry-run", false, "Preview without writing to Notion")
	fs.Parse(os.Args[2:])

	if *notionToken == "" {
		log.Fatal().Msg("Error: -notion-token or NOTION_TOKEN is required")
	}
	if *notionDBID == "" {
		log.Fatal().Msg("Error: -notion-db-id or NOTION_DATABASE_ID is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, closeStore, err := artifact.Open(ctx, cfg.Artifact)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open artifact store")
	}
	defer closeStore()

	report, err := notionsync.LoadReport(ctx, store, *name, time.Now())
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load report artifacts")
	}

	pageID, err := notionsync.Publish(ctx, notionsync.NewNotionClient(*notionToken), *notionDBID, report, *dryRun)
	if err != nil {
		log.Fatal().Err(err).Msg("Publish failed")
	}

	if *dryRun {
		fmt.Println("Dry run completed.")
		return
	}
	fmt.Printf("Published report %q to Notion page %s\n", report.Name, pageID)
}

// build wires the pipeline from configuration. The returned function closes
// the artifact store.
func build(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pipeline.Pipeline, runlog.Store, func()) {
	store, closeStore, err := artifact.Open(ctx, cfg.Artifact)
	if err != nil {
		log.Fatal().Err(err).Str("backend", cfg.Artifact.Backend).Msg("Failed to open artifact store")
	}

	model, err := llm.NewGeminiModel(ctx)
	if err != nil {
		closeStore()
		log.Fatal().Err(err).Msg("Failed to create model client")
	}

	env := &pipeline.Env{
		Model:     llm.WithTimeout(model, cfg.Model.Timeout),
		ModelName: cfg.Model.Name,
		Store:     store,
		Log:       log,
	}
	runs := inmemory.NewStore()
	p := pipeline.NewReportPipeline(env, ledger.File{Path: cfg.Ledger.Path}, pipeline.KPIMode(cfg.KPIMode), runs)

	log.Info().
		Str("model", cfg.Model.Name).
		Str("backend", cfg.Artifact.Backend).
		Str("ledger", cfg.Ledger.Path).
		Str("kpi_mode", cfg.KPIMode).
		Msg("Pipeline configured")

	closed := false
	return p, runs, func() {
		if closed {
			return
		}
		closed = true
		if err := closeStore(); err != nil {
			log.Warn().Err(err).Msg("Failed to close artifact store")
		}
	}
}

func printRuns(ctx context.Context, runs runlog.Store, runID string) {
	recorded, err := runs.List(ctx, runlog.Filter{RunID: runID})
	if err != nil || len(recorded) == 0 {
		return
	}

	fmt.Printf("\n=== Run %s ===\n", runID)
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "STAGE\tSTATUS\tDURATION\tNOTES")
	for _, run := range recorded {
		duration := "-"
		if run.CompletedAt != nil {
			duration = run.CompletedAt.Sub(run.StartedAt).Round(time.Millisecond).String()
		}
		notes := run.Error
		if run.Fallback {
			notes = "default used"
		}
		if len(run.Warnings) > 0 {
			if notes != "" {
				notes += "; "
			}
			notes += fmt.Sprintf("%d warning(s)", len(run.Warnings))
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.Stage, run.Status, duration, notes)
	}
	w.Flush()
}

func isMissing(err error) bool {
	return errors.Is(err, artifact.ErrMissingArtifact)
}
