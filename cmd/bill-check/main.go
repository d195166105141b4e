package main

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/zombor/bill-check/internal/analysis"
	"github.com/zombor/bill-check/internal/logging"
	"github.com/zombor/bill-check/internal/pricing"
	"github.com/zombor/bill-check/internal/report"
	"github.com/zombor/bill-check/internal/scanning"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

type config struct {
	port           int
	dbPath         string
	storagePath    string
	extractor      string
	geminiKey      string
	geminiModel    string
	ollamaURL      string
	ollamaModel    string
	anthropicKey   string
	anthropicModel string
	rateAPIURL     string
	rangeAPIURL    string
	rateTimeout    int
	ratesFile      string
	localitiesFile string
	workers        int
	authUser       string
	authPass       string
	logLevel       string
	billFile       string
}

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	var cfg config
	fs := ff.NewFlagSet("bill-check")
	fs.IntVar(&cfg.port, 0, "port", 8080, "HTTP server port")
	fs.StringVar(&cfg.dbPath, 0, "db", "bill-check.db", "Database file path")
	fs.StringVar(&cfg.storagePath, 0, "storage", "./bills", "Bill image storage directory")
	fs.StringVar(&cfg.extractor, 0, "extractor", "gemini", "Bill extractor: 'gemini', 'ollama' or 'claude'")
	fs.StringVar(&cfg.geminiKey, 0, "gemini-key", "", "Google Gemini API key (or set GEMINI_API_KEY env var)")
	fs.StringVar(&cfg.geminiModel, 0, "gemini-model", "gemini-2.5-pro", "Google Gemini model name")
	fs.StringVar(&cfg.ollamaURL, 0, "ollama-url", "http://localhost:11434", "Ollama API base URL")
	fs.StringVar(&cfg.ollamaModel, 0, "ollama-model", "llava", "Ollama vision model name (e.g., llava, qwen2-vl)")
	fs.StringVar(&cfg.anthropicKey, 0, "anthropic-key", "", "Anthropic API key (or set ANTHROPIC_API_KEY env var)")
	fs.StringVar(&cfg.anthropicModel, 0, "anthropic-model", "claude-sonnet-4-5", "Anthropic model name")
	fs.StringVar(&cfg.rateAPIURL, 0, "rate-api-url", "", "Reference rate service base URL (optional, falls back to the built-in table)")
	fs.StringVar(&cfg.rangeAPIURL, 0, "range-api-url", "", "Private insurance percentile service base URL (optional)")
	fs.IntVar(&cfg.rateTimeout, 0, "rate-timeout-seconds", 10, "Timeout for rate service requests")
	fs.StringVar(&cfg.ratesFile, 0, "rates-file", "", "YAML fallback rate table (default: built-in)")
	fs.StringVar(&cfg.localitiesFile, 0, "localities-file", "", "YAML Medicare locality directory (default: built-in)")
	fs.IntVar(&cfg.workers, 0, "workers", 0, "Line items compared concurrently (0 = GOMAXPROCS)")
	fs.StringVar(&cfg.authUser, 0, "auth-user", "", "Basic auth username (optional)")
	fs.StringVar(&cfg.authPass, 0, "auth-pass", "", "Basic auth password (optional)")
	fs.StringVar(&cfg.logLevel, 0, "log-level", "info", "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.billFile, 0, "bill", "", "Analyze a bill JSON file, print the report and exit")
	_ = fs.StringLong("config", "", "Config file (optional)")
	showVersion := fs.BoolLong("version", "Show version information")

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("BILL_CHECK"),
		ff.WithConfigFileFlag("config"),
		ff.WithConfigFileParser(ff.PlainParser),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		if errors.Is(err, ff.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	if err := logging.Setup(os.Stderr, cfg.logLevel, true); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reference, analyzer, err := newPricing(cfg)
	if err != nil {
		slog.Error("Failed to load pricing data", "error", err)
		os.Exit(1)
	}

	if cfg.billFile != "" {
		if err := analyzeFile(ctx, analyzer, cfg.billFile, os.Stdout); err != nil {
			slog.Error("Failed to analyze bill", "file", cfg.billFile, "error", err)
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, cfg, reference, analyzer); err != nil {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}
}

// newPricing loads the reference datasets and wires the analyzer
func newPricing(cfg config) (report.Reference, *analysis.Analyzer, error) {
	directory := pricing.DefaultDirectory()
	if cfg.localitiesFile != "" {
		d, err := pricing.LoadDirectory(cfg.localitiesFile)
		if err != nil {
			return report.Reference{}, nil, err
		}
		directory = d
	}

	table := pricing.DefaultRateTable()
	if cfg.ratesFile != "" {
		t, err := pricing.LoadRateTable(cfg.ratesFile)
		if err != nil {
			return report.Reference{}, nil, err
		}
		table = t
	}

	timeout := time.Duration(cfg.rateTimeout) * time.Second

	var primary pricing.RateSource
	if cfg.rateAPIURL != "" {
		slog.Info("Using reference rate service", "url", cfg.rateAPIURL)
		primary = pricing.NewHTTPRateSource(cfg.rateAPIURL, timeout)
	}

	var ranges pricing.RangeSource
	if cfg.rangeAPIURL != "" {
		slog.Info("Using private insurance percentile service", "url", cfg.rangeAPIURL)
		ranges = pricing.NewHTTPRangeSource(cfg.rangeAPIURL, timeout)
	}

	catalog := pricing.DefaultCatalog()
	lookup := pricing.NewLookup(primary, table, catalog, directory)
	comparator := pricing.NewComparator(lookup, ranges, directory)

	reference := report.Reference{
		Rates:      lookup,
		Ranges:     ranges,
		Localities: directory,
		Procedures: catalog,
	}
	return reference, analysis.NewAnalyzer(directory, comparator, cfg.workers), nil
}

// analyzeFile prints the report for a bill JSON file
func analyzeFile(ctx context.Context, analyzer *analysis.Analyzer, path string, w io.Writer) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading bill file: %w", err)
	}

	var bill analysis.BillRecord
	if err := json.Unmarshal(data, &bill); err != nil {
		return fmt.Errorf("decoding bill file: %w", err)
	}
	bill.Provider.State = strings.ToUpper(strings.TrimSpace(bill.Provider.State))

	result, err := analyzer.Analyze(ctx, &bill)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return nil
}

func newExtractor(cfg config) (scanning.Extractor, error) {
	switch cfg.extractor {
	case "gemini":
		apiKey := cfg.geminiKey
		if apiKey == "" {
			apiKey = os.Getenv("GEMINI_API_KEY")
		}
		if apiKey == "" {
			return nil, fmt.Errorf("gemini API key is required. Set --gemini-key flag or GEMINI_API_KEY environment variable")
		}
		slog.Info("Initializing Gemini extractor...", "model", cfg.geminiModel)
		return scanning.NewGemini(apiKey, cfg.geminiModel)
	case "ollama":
		slog.Info("Initializing Ollama extractor...", "url", cfg.ollamaURL, "model", cfg.ollamaModel)
		return scanning.NewOllama(cfg.ollamaURL, cfg.ollamaModel)
	case "claude":
		apiKey := cfg.anthropicKey
		if apiKey == "" {
			apiKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		slog.Info("Initializing Claude extractor...", "model", cfg.anthropicModel)
		return scanning.NewClaude(apiKey, cfg.anthropicModel)
	default:
		return nil, fmt.Errorf("invalid extractor %q, valid: gemini, ollama or claude", cfg.extractor)
	}
}

func serve(ctx context.Context, cfg config, reference report.Reference, analyzer *analysis.Analyzer) error {
	slog.Info("Initializing database...")
	db, err := report.NewBoltDB(cfg.dbPath)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	extractor, err := newExtractor(cfg)
	if err != nil {
		return fmt.Errorf("initializing extractor: %w", err)
	}
	defer extractor.Close()

	slog.Info("Initializing storage...")
	store, err := report.NewLocalStorage(cfg.storagePath)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	service := report.NewService(db, extractor, analyzer, store, report.NewMetrics(registry))
	server := report.NewServer(service, reference, report.BasicAuth{
		Username: cfg.authUser,
		Password: cfg.authPass,
	}, registry)

	addr := fmt.Sprintf(":%d", cfg.port)
	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr), "version", version)
	if cfg.authUser != "" || cfg.authPass != "" {
		slog.Info("Basic auth enabled", "user", cfg.authUser)
	}

	// Returns once in-flight scans are saved, before the deferred db.Close
	if err := server.Start(ctx, addr); err != nil {
		return err
	}
	slog.Info("Server stopped")
	return nil
}
