package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"github.com/fedql/fedql/pkg/app"
	"github.com/fedql/fedql/pkg/catalog"
	"github.com/fedql/fedql/pkg/config"
	"github.com/fedql/fedql/pkg/llm"
	"github.com/fedql/fedql/pkg/logging"
	"github.com/fedql/fedql/pkg/masking"
)

// displayRowLimit caps terminal output, not result materialization.
const displayRowLimit = 50

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	introspect := flag.Bool("introspect", false, "rebuild the catalog from the configured DSNs and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	dsns, err := catalog.LoadDSNs(cfg.DSNPath)
	if err != nil {
		logger.Fatal("DSN load failed", zap.Error(err))
	}

	if *introspect {
		runIntrospection(cfg, dsns, logger)
		return
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Fatal("catalog load failed", zap.Error(err))
	}

	policy, err := masking.LoadPolicy(cfg.MaskingPath)
	if err != nil {
		logger.Fatal("masking policy load failed", zap.Error(err))
	}
	if cfg.Role != masking.AdminRole && !policy.HasRole(cfg.Role) {
		logger.Warn("role not defined in masking policy, tagged fields will be masked",
			zap.String("role", cfg.Role))
	}

	client, err := llm.NewClient(&llm.Config{
		Endpoint: cfg.LLM.BaseURL,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		Timeout:  time.Duration(cfg.LLM.TimeoutSeconds) * time.Second,
	}, logger)
	if err != nil {
		logger.Fatal("LLM client init failed", zap.Error(err))
	}

	pipeline := app.New(cfg, logger, client, cat, dsns, policy)

	logger.Info("ready",
		zap.String("model", client.GetModel()),
		zap.Int("databases", len(cat)),
		zap.String("role", cfg.Role))

	runAskLoop(pipeline)
}

func runIntrospection(cfg *config.Config, dsns map[string]string, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	cat := catalog.Introspect(ctx, dsns, logger)
	if err := catalog.Save(cfg.CatalogPath, cat); err != nil {
		logger.Fatal("catalog save failed", zap.Error(err))
	}
	logger.Info("catalog written",
		zap.String("path", cfg.CatalogPath),
		zap.Int("databases", len(cat)))
}

func runAskLoop(pipeline *app.App) {
	fmt.Println("Type a question (empty to exit). Example: top 3 clients by total invoice amount")

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			break
		}
		question := strings.TrimSpace(scanner.Text())
		if question == "" {
			break
		}

		resp, err := pipeline.Ask(context.Background(), question)
		if err != nil {
			fmt.Printf("[error] planning failed: %v\n", err)
			continue
		}
		printResponse(resp)

		fmt.Println("\nReady. Ask another question or press Enter to exit.")
	}
}

func printResponse(resp *app.Response) {
	fmt.Println("\n=== Per-DB SQL ===")
	for _, src := range resp.Sources {
		fmt.Printf("[%s] %s\n", src.DBID, src.SQL)
	}

	fmt.Println("\n=== Results (first rows) ===")
	for _, src := range resp.Sources {
		if src.Result.Error != "" {
			fmt.Printf("[%s] ERROR: %s\n", src.DBID, src.Result.Error)
			continue
		}
		fmt.Printf("[%s] %d rows%s\n", src.DBID, len(src.Result.Rows), maskNote(src.MaskIndicators))
		printTable(src.Result.Columns, src.Result.Rows)
	}

	fmt.Println("\n=== Final Rows (merge SQL over in-memory tables) ===")
	switch {
	case resp.Final != nil:
		if resp.Final.SQL != "" {
			fmt.Printf("[Merge SQL] %s\n", resp.Final.SQL)
		}
		if note := maskNote(resp.FinalIndicators); note != "" {
			fmt.Println(strings.TrimPrefix(note, " "))
		}
		printTable(resp.Final.Columns, resp.Final.Rows)
	case resp.FederationError != "":
		fmt.Printf("[error] %s\n", resp.FederationError)
	}

	if resp.SuggestedFinalSQL != "" {
		fmt.Printf("\n[Planner-suggested final SQL, not executed] %s\n", resp.SuggestedFinalSQL)
	}
}

func printTable(columns []string, rows []map[string]any) {
	if len(columns) == 0 {
		fmt.Println("  (no columns)")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetStyle(table.StyleLight)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col
	}
	t.AppendHeader(header)

	for i, row := range rows {
		if i >= displayRowLimit {
			t.AppendFooter(table.Row{fmt.Sprintf("… %d more rows", len(rows)-displayRowLimit)})
			break
		}
		cells := make(table.Row, len(columns))
		for j, col := range columns {
			cells[j] = formatCell(row[col])
		}
		t.AppendRow(cells)
	}
	t.Render()
}

func formatCell(v any) string {
	if v == nil {
		return "NULL"
	}
	return fmt.Sprint(v)
}

func maskNote(indicators map[string]string) string {
	if len(indicators) == 0 {
		return ""
	}
	cols := make([]string, 0, len(indicators))
	for col := range indicators {
		cols = append(cols, col)
	}
	sort.Strings(cols)
	return fmt.Sprintf(" (masked: %s)", strings.Join(cols, ", "))
}
