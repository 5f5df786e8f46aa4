package commands

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/noah-art3mis/judex-mini/lib/browser"
	"github.com/noah-art3mis/judex-mini/lib/configutil"
	"github.com/noah-art3mis/judex-mini/lib/export"
	"github.com/noah-art3mis/judex-mini/lib/pipeline"
	"github.com/noah-art3mis/judex-mini/lib/scrapers/stf"
	"github.com/noah-art3mis/judex-mini/lib/telemetry"
)

// Config holds the knobs that rarely change between runs, read from
// judex.json5 when one exists.
type Config struct {
	BaseURL    string `json:"base_url"`
	UserAgent  string `json:"user_agent"`
	BrowserBin string `json:"browser_bin"`
}

var (
	classe        *string
	primeiro      *int
	ultimo        *int
	outputFormat  *string
	outputDir     *string
	overwrite     *bool
	maxRetries    *int
	waitTimeout   *time.Duration
	navigator     *string
	missingSweeps *int
	journalPath   *string
	headful       *bool
)

func init() {
	flags := scrapeCmd.Flags()
	classe = flags.StringP("classe", "c", "AI", "STF case class code, e.g. AI, RE, ADI.")
	primeiro = flags.IntP("processo-inicial", "i", 772309, "First case number of the range.")
	ultimo = flags.IntP("processo-final", "f", 0, "Last case number of the range (defaults to the first).")
	outputFormat = flags.StringP("output-format", "o", "json", "Output format: json, jsonl, csv or all.")
	outputDir = flags.StringP("output-dir", "d", "output", "Directory to write records to.")
	overwrite = flags.Bool("overwrite", false, "Replace an existing output file instead of refusing.")
	maxRetries = flags.Int("max-retries", 5, "Navigation retries per case after the first attempt.")
	waitTimeout = flags.Duration("wait-timeout", 10*time.Second, "How long to wait for the case page to render.")
	navigator = flags.String("navigator", "rod", "Page navigator: rod (headless Chrome) or http.")
	missingSweeps = flags.Int("missing-sweeps", 1, "Extra passes over cases that have no successful outcome yet.")
	journalPath = flags.String("journal", "", "Path to the sqlite run journal (defaults to <output-dir>/judex.db).")
	headful = flags.Bool("headful", false, "Run the browser with a visible window.")
	rootCmd.AddCommand(scrapeCmd)
}

func newFactory(cfg Config) (browser.Factory, error) {
	switch *navigator {
	case "rod":
		opts := browser.DefaultRodOptions()
		opts.Headless = !*headful
		if cfg.UserAgent != "" {
			opts.UserAgent = cfg.UserAgent
		}
		opts.Bin = cfg.BrowserBin
		return browser.NewRodFactory(opts), nil
	case "http":
		return browser.NewHTTPFactory(browser.HTTPOptions{UserAgent: cfg.UserAgent})
	}
	return nil, fmt.Errorf("unknown navigator %q (want rod or http)", *navigator)
}

var scrapeCmd = &cobra.Command{
	Use:   "scrape [-c <classe>] [-i <first>] [-f <last>]",
	Short: "Scrapes a range of case numbers and writes structured records.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := configutil.ReadConfig[Config]("judex.json5")
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			fatal("failed to read judex.json5", err)
		}

		last := *ultimo
		if last == 0 {
			last = *primeiro
		}
		r, err := stf.NewRange(*classe, *primeiro, last)
		if err != nil {
			fatal("invalid case range", err)
		}

		format, err := export.FormatFromString(*outputFormat)
		if err != nil {
			fatal("invalid output format", err)
		}

		factory, err := newFactory(cfg)
		if err != nil {
			fatal("failed to set up navigator", err)
		}

		policy := browser.DefaultRetryPolicy()
		policy.MaxRetries = *maxRetries
		policy.WaitTimeout = *waitTimeout

		journal := *journalPath
		if journal == "" {
			journal = filepath.Join(*outputDir, "judex.db")
		}

		ctx := cmd.Context()
		telemetry.InstrumentPerfStats(ctx)

		runner := pipeline.NewRunner(factory, pipeline.Config{
			Range:         r,
			BaseURL:       cfg.BaseURL,
			OutputDir:     *outputDir,
			Format:        format,
			Overwrite:     *overwrite,
			Policy:        policy,
			MissingSweeps: *missingSweeps,
			JournalPath:   journal,
		})

		report, err := runner.Run(ctx, os.Stdout)
		if err != nil {
			fatal("run failed", err)
		}
		if report.Summary.Failed > 0 {
			os.Exit(2)
		}
	},
}
