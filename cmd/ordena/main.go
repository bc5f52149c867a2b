package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"ordena/internal"
	"ordena/internal/catalog"
	"ordena/internal/config"
	"ordena/internal/fallback"
	"ordena/internal/order"
	"ordena/internal/pipeline"
	"ordena/internal/storage"
)

func main() {
	cfg, err := config.Load()
	must(err)

	logger, err := zap.NewProduction()
	must(err)
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	policy, err := config.LoadPolicy(cfg.PolicyPath)
	must(err)

	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	db, err := storage.Open(cfg.DBPath)
	must(err)
	defer db.Close()

	cmd := os.Args[1]
	switch cmd {
	case "catalog:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "products JSON file")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*file, "--file")
		products, err := readProductsFile(*file)
		must(err)
		must(db.UpsertProducts(products))
		fmt.Printf("catalog import done products=%d\n", len(products))
	case "catalog:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		_ = fs.Parse(os.Args[2:])
		must(cfg.Require("CATALOG_API_BASE_URL", cfg.CatalogAPIBaseURL))
		must(cfg.Require("CATALOG_API_TOKEN", cfg.CatalogAPIToken))
		sync := catalog.NewSyncService(db, cfg)
		n, err := sync.SyncProducts(context.Background())
		must(err)
		fmt.Printf("catalog sync done products=%d\n", n)
	case "branches:sync":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		client := fs.String("client", "", "client id")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*client, "--client")
		must(cfg.Require("CATALOG_API_BASE_URL", cfg.CatalogAPIBaseURL))
		must(cfg.Require("CATALOG_API_TOKEN", cfg.CatalogAPIToken))
		sync := catalog.NewSyncService(db, cfg)
		n, err := sync.SyncBranches(context.Background(), *client)
		must(err)
		fmt.Printf("branches sync done branches=%d\n", n)
	case "branches:import":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "branches JSON file")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*file, "--file")
		branches, err := readBranchesFile(*file)
		must(err)
		must(db.UpsertBranches(branches))
		fmt.Printf("branches import done branches=%d\n", len(branches))
	case "process":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		file := fs.String("file", "", "raw .eml file")
		client := fs.String("client", "", "client id")
		merge := fs.Bool("merge", false, "merge resolved branches into drafts")
		skipUnresolved := fs.Bool("skip-unresolved", false, "merge even when unmatched lines remain in review")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*file, "--file")
		requireFlag(*client, "--client")

		svc := pipeline.NewProcessingService(db, cfg, policy, makeFallback(cfg, policy))
		parsed, err := svc.ProcessFile(context.Background(), *file, *client)
		must(err)
		printJSON(parsed)

		if *merge {
			mergeParsed(db, policy, parsed, *client, *skipUnresolved)
		}
	case "process:batch":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		dir := fs.String("dir", "", "directory of .eml files")
		client := fs.String("client", "", "client id")
		merge := fs.Bool("merge", false, "merge resolved branches into drafts")
		skipUnresolved := fs.Bool("skip-unresolved", false, "merge even when unmatched lines remain in review")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*dir, "--dir")
		requireFlag(*client, "--client")
		processBatch(db, cfg, policy, *dir, *client, *merge, *skipUnresolved)
	case "drafts:list":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		status := fs.String("status", "draft", "draft|finalized|all")
		_ = fs.Parse(os.Args[2:])
		filter := internal.DraftStatus(*status)
		if *status == "all" {
			filter = ""
		}
		drafts, err := db.ListDrafts(filter)
		must(err)
		for _, d := range drafts {
			fmt.Printf("%s  client=%s branch=%d(%s) date=%s status=%s lines=%d total=%s\n",
				d.ID, d.ClientID, d.BranchID, d.BranchName, d.DeliveryDate, d.Status, len(d.Lines), d.Totals.Grand.String())
		}
	case "drafts:show":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "draft id")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*id, "--id")
		draft := mustDraft(db, *id)
		printJSON(draft)
	case "drafts:export":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "draft id")
		out := fs.String("out", "", "output xlsx path (default: OUTPUT_DIR/<draft-id>.xlsx)")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*id, "--id")
		path := *out
		if path == "" {
			must(os.MkdirAll(cfg.OutputDir, 0o755))
			path = filepath.Join(cfg.OutputDir, *id+".xlsx")
		}
		draft := mustDraft(db, *id)
		must(pipeline.ExportDraftToXLSX(*draft, path))
		fmt.Printf("exported draft %s to %s\n", *id, path)
	case "drafts:delete":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		id := fs.String("id", "", "draft id")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*id, "--id")
		svc := makeOrderService(db, policy)
		must(svc.Delete(*id))
		fmt.Printf("deleted draft %s\n", *id)
	case "verify":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		draftID := fs.String("draft", "", "draft id")
		product := fs.Int("product", 0, "product id")
		weight := fs.Float64("weight", 0, "confirmed weight in kg")
		units := fs.Float64("units", 0, "confirmed unit count")
		accept := fs.Bool("accept-implausible", false, "proceed past the plausibility ceiling")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*draftID, "--draft")
		if *product == 0 {
			must(fmt.Errorf("--product is required"))
		}

		svc := makeOrderService(db, policy)
		draft, warning, err := svc.MarkVerified(*draftID, *product, *weight, *units, *accept)
		must(err)
		if warning != nil && draft == nil {
			fmt.Printf("not saved: %s (re-run with --accept-implausible to proceed)\n", warning)
			os.Exit(2)
		}
		if warning != nil {
			fmt.Printf("warning acknowledged: %s\n", warning)
		}
		fmt.Printf("verified product %d on draft %s\n", *product, *draftID)
	case "verify:all":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		draftID := fs.String("draft", "", "draft id")
		products := fs.String("products", "", "comma-separated product ids (default: all pending)")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*draftID, "--draft")

		svc := makeOrderService(db, policy)
		ids, err := parseIDList(*products)
		must(err)
		draft, err := svc.MarkAllVerified(*draftID, ids)
		must(err)
		fmt.Printf("verified %d line(s) on draft %s\n", len(draft.Lines), *draftID)
	case "finalize":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		draftID := fs.String("draft", "", "draft id")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*draftID, "--draft")

		svc := makeOrderService(db, policy)
		refs, err := svc.Finalize(*draftID)
		var unverified *order.UnverifiedError
		if errors.As(err, &unverified) {
			fmt.Fprintf(os.Stderr, "error: %v\n", unverified)
			os.Exit(2)
		}
		must(err)
		for _, ref := range refs {
			fmt.Printf("created sales order %s from draft %s\n", ref.ID, ref.DraftID)
		}
	case "run":
		fs := flag.NewFlagSet(cmd, flag.ExitOnError)
		input := fs.String("input", "", "text or HTML file with the email body")
		_ = fs.Parse(os.Args[2:])
		requireFlag(*input, "--input")

		body, err := os.ReadFile(*input)
		must(err)
		products, err := db.ListProducts()
		must(err)
		branches, err := db.ListBranches()
		must(err)
		parsed := pipeline.ParseSnippet(cfg, policy, string(body), products, branches)
		printJSON(parsed)
	default:
		usage()
		os.Exit(1)
	}
}

func processBatch(db *storage.DB, cfg config.Config, policy config.Policy, dir, client string, merge, skipUnresolved bool) {
	entries, err := os.ReadDir(dir)
	must(err)

	var files []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".eml") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}

	fb := makeFallback(cfg, policy)
	svc := pipeline.NewProcessingService(db, cfg, policy, fb)

	// Parsing is CPU-bound with no shared state; emails are independent.
	// Merging touches shared drafts, so it stays sequential afterwards.
	results := make([]internal.ParsedOrder, len(files))
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.ProcessConcurrency)
	for i, file := range files {
		g.Go(func() error {
			parsed, err := svc.ProcessFile(ctx, file, client)
			if err != nil {
				return fmt.Errorf("%s: %w", file, err)
			}
			results[i] = parsed
			return nil
		})
	}
	must(g.Wait())

	merged := 0
	if merge {
		for _, parsed := range results {
			mergeParsed(db, policy, parsed, client, skipUnresolved)
			merged++
		}
	}
	fmt.Printf("batch done files=%d merged=%d\n", len(files), merged)
}

func mergeParsed(db *storage.DB, policy config.Policy, parsed internal.ParsedOrder, client string, skipUnresolved bool) {
	svc := makeOrderService(db, policy)
	drafts, err := svc.MergeParsed(parsed, client, skipUnresolved)
	var unresolved *order.UnresolvedLinesError
	if errors.As(err, &unresolved) {
		fmt.Fprintf(os.Stderr, "error: %v\n", unresolved)
		fmt.Fprintln(os.Stderr, "resolve the lines in review, or re-run with --skip-unresolved to merge without them")
		os.Exit(2)
	}
	must(err)
	for _, d := range drafts {
		fmt.Printf("draft %s branch=%d date=%s lines=%d total=%s\n",
			d.ID, d.BranchID, d.DeliveryDate, len(d.Lines), d.Totals.Grand.String())
	}
}

func makeOrderService(db *storage.DB, policy config.Policy) *order.Service {
	products, err := db.ListProducts()
	must(err)
	return order.NewService(db, policy, products)
}

func makeFallback(cfg config.Config, policy config.Policy) pipeline.Parser {
	if strings.TrimSpace(cfg.AnthropicAPIKey) == "" {
		return nil
	}
	return fallback.New(cfg, policy)
}

func readProductsFile(path string) ([]internal.CatalogProduct, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []struct {
		ID             int      `json:"id"`
		Name           string   `json:"name"`
		SaleUnit       string   `json:"saleUnit"`
		PricedByWeight bool     `json:"pricedByWeight"`
		WeightPerUnit  *float64 `json:"weightPerUnit"`
		AppliesTaxA    bool     `json:"appliesTaxA"`
		AppliesTaxB    bool     `json:"appliesTaxB"`
		QuotedPrice    *string  `json:"quotedPrice"`
	}
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, err
	}

	out := make([]internal.CatalogProduct, 0, len(rows))
	for _, r := range rows {
		p := internal.CatalogProduct{
			ID:             r.ID,
			Name:           r.Name,
			SaleUnit:       r.SaleUnit,
			PricedByWeight: r.PricedByWeight,
			WeightPerUnit:  r.WeightPerUnit,
			AppliesTaxA:    r.AppliesTaxA,
			AppliesTaxB:    r.AppliesTaxB,
		}
		if r.QuotedPrice != nil {
			dec, err := parsePrice(*r.QuotedPrice)
			if err != nil {
				return nil, fmt.Errorf("product %d: %w", r.ID, err)
			}
			p.QuotedPrice = dec
		}
		out = append(out, p)
	}
	return out, nil
}

func readBranchesFile(path string) ([]internal.Branch, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var out []internal.Branch
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func parsePrice(s string) (*decimal.Decimal, error) {
	dec, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return nil, fmt.Errorf("bad price %q", s)
	}
	return &dec, nil
}

func mustDraft(db *storage.DB, id string) *internal.DraftOrder {
	draft, err := db.GetDraft(id)
	must(err)
	if draft == nil {
		must(fmt.Errorf("draft %s not found", id))
	}
	return draft
}

func parseIDList(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		id, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("bad product id %q", part)
		}
		out = append(out, id)
	}
	return out, nil
}

func printJSON(v any) {
	raw, err := json.MarshalIndent(v, "", "  ")
	must(err)
	fmt.Println(string(raw))
}

func requireFlag(value, name string) {
	if strings.TrimSpace(value) == "" {
		must(fmt.Errorf("%s is required", name))
	}
}

func usage() {
	fmt.Println("usage: ordena <command>")
	fmt.Println("commands:")
	fmt.Println("  catalog:import --file=products.json")
	fmt.Println("  catalog:sync")
	fmt.Println("  branches:sync --client=c1")
	fmt.Println("  branches:import --file=branches.json")
	fmt.Println("  process --file=mail.eml --client=c1 [--merge] [--skip-unresolved]")
	fmt.Println("  process:batch --dir=./mail --client=c1 [--merge] [--skip-unresolved]")
	fmt.Println("  drafts:list [--status=draft|finalized|all]")
	fmt.Println("  drafts:show --id=...")
	fmt.Println("  drafts:export --id=... [--out=./out/draft.xlsx]")
	fmt.Println("  drafts:delete --id=...")
	fmt.Println("  verify --draft=... --product=12 --weight=925 --units=37 [--accept-implausible]")
	fmt.Println("  verify:all --draft=... [--products=1,2,3]")
	fmt.Println("  finalize --draft=...")
	fmt.Println("  run --input=body.html")
}

func must(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
