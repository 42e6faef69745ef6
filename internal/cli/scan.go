package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/digggggmori-pixel/ferret-bam/internal/config"
	"github.com/digggggmori-pixel/ferret-bam/internal/logger"
	"github.com/digggggmori-pixel/ferret-bam/internal/metrics"
	"github.com/digggggmori-pixel/ferret-bam/internal/output"
	"github.com/digggggmori-pixel/ferret-bam/internal/scan"
	"github.com/digggggmori-pixel/ferret-bam/pkg/types"
)

// scanFlags are the raw command-line values; unset flags fall back to the config
type scanFlags struct {
	format      string
	output      string
	compress    bool
	rulesPath   string
	noAux       bool
	metricsFile string
	quiet       bool
	verbose     bool
	filter      output.Filter
}

// scanOptions are the effective settings of one scan invocation
type scanOptions struct {
	Format      string
	Output      string
	Compress    bool
	RulesPath   string
	Auxiliary   bool
	MetricsFile string
	Quiet       bool
	Verbose     bool
	Filter      output.Filter
}

func (a *app) newScanCommand() *cobra.Command {
	f := &scanFlags{}

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Read and enrich the BAM execution history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runScan(cmd.Context(), cmd.OutOrStdout(), cmd.ErrOrStderr(), a.scanOptions(cmd, f))
		},
	}
	bindScanFlags(cmd, f)
	return cmd
}

func bindScanFlags(cmd *cobra.Command, f *scanFlags) {
	flags := cmd.Flags()
	flags.StringVarP(&f.format, "format", "f", config.FormatTable, "Output format: table, json, csv or sqlite")
	flags.StringVarP(&f.output, "output", "o", "", "Output file (stdout for json and csv when empty)")
	flags.BoolVar(&f.compress, "compress", false, "zstd-compress json output")
	flags.StringVar(&f.rulesPath, "rules", "", "Rule bundle (default rules.json next to the executable)")
	flags.BoolVar(&f.noAux, "no-aux", false, "Skip the replace scanner")
	flags.StringVar(&f.metricsFile, "metrics-file", "", "Write Prometheus metrics to this textfile")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "Only print results")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "Include replace finding details in the table")
	flags.BoolVar(&f.filter.NotSignedOnly, "not-signed", false, "Hide signed executables")
	flags.BoolVar(&f.filter.FlaggedOnly, "flagged", false, "Only show records with a rule match or replace finding")
	flags.BoolVar(&f.filter.CurrentSessionOnly, "current-session", false, "Only show executions of the current logon session")
	flags.StringVar(&f.filter.Search, "search", "", "Case-insensitive search over time, path, signature and rules")
}

// scanOptions merges flags over the loaded configuration
func (a *app) scanOptions(cmd *cobra.Command, f *scanFlags) scanOptions {
	cfg := a.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	changed := func(name string) bool {
		fl := cmd.Flags().Lookup(name)
		return fl != nil && fl.Changed
	}

	opts := scanOptions{
		Format:      cfg.Output.Format,
		Output:      cfg.Output.Path,
		Compress:    cfg.Output.Compress,
		RulesPath:   f.rulesPath,
		Auxiliary:   cfg.AuxiliaryEnabled() && !f.noAux,
		MetricsFile: cfg.Metrics.Textfile,
		Quiet:       f.quiet,
		Verbose:     f.verbose,
		Filter:      f.filter,
	}
	if changed("format") {
		opts.Format = f.format
	}
	if changed("output") {
		opts.Output = f.output
	}
	if changed("compress") {
		opts.Compress = f.compress
	}
	if changed("metrics-file") {
		opts.MetricsFile = f.metricsFile
	}
	return opts
}

func (a *app) runScan(ctx context.Context, stdout, stderr io.Writer, opts scanOptions) error {
	switch opts.Format {
	case config.FormatTable, config.FormatJSON, config.FormatCSV, config.FormatSQLite:
	default:
		return fmt.Errorf("unknown format %q", opts.Format)
	}
	if opts.Compress && opts.Format != config.FormatJSON {
		return fmt.Errorf("--compress requires --format json")
	}
	if opts.Format == config.FormatTable && opts.Output != "" {
		return fmt.Errorf("--output requires a json, csv or sqlite format")
	}
	if opts.Format == config.FormatSQLite && opts.Output == "" {
		return fmt.Errorf("--format sqlite requires --output")
	}

	// Machine formats on stdout keep the report on stderr
	reportOut := stdout
	if opts.Format != config.FormatTable && opts.Output == "" {
		reportOut = stderr
	}
	h := output.New(reportOut, output.Options{Quiet: opts.Quiet, Verbose: opts.Verbose})

	rs, err := loadRules(a.cfg, opts.RulesPath)
	if err != nil {
		return err
	}

	host, err := os.Hostname()
	if err != nil {
		host = "unknown"
	}
	h.PrintHeader(a.version, host)

	progress := make(chan scan.Progress, 16)
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		last := 0
		for p := range progress {
			if p.Step != last {
				h.PrintStep(p.Step, p.Total, p.StepName)
				last = p.Step
			}
			if p.Done {
				h.PrintDetail("%s", p.Detail)
			}
		}
	}()

	svc := scan.NewServiceWithChannel(buildDeps(a.cfg, rs, opts.Auxiliary), a.scanConfig(opts.Auxiliary), progress)
	result, scanErr := svc.Execute(ctx)
	close(progress)
	<-printed

	if result == nil {
		return scanErr
	}
	if scanErr != nil {
		h.PrintError("%v", scanErr)
	}

	if opts.MetricsFile != "" {
		m := metrics.NewMetrics()
		m.Observe(result)
		if err := m.WriteTextfile(opts.MetricsFile); err != nil {
			logger.Warn("Metrics textfile: %v", err)
			h.PrintError("metrics: %v", err)
		}
	}

	filtered := filteredResult(result, opts.Filter)
	if opts.Format == config.FormatTable {
		h.PrintSummary(result)
		h.PrintRecords(filtered.Records)
		return scanErr
	}

	if err := writeResult(opts, filtered); err != nil {
		return err
	}
	h.PrintSummary(result)
	return scanErr
}

// filteredResult returns a shallow copy of result holding only the records passing f.
// The summary keeps the counts of the whole pass.
func filteredResult(result *types.ScanResult, f output.Filter) *types.ScanResult {
	if f.IsZero() {
		return result
	}
	out := *result
	out.Records = f.Apply(result.Records)
	return &out
}

func writeResult(opts scanOptions, result *types.ScanResult) error {
	w, err := output.NewWriter(opts.Format, opts.Output, opts.Compress)
	if err != nil {
		return err
	}
	if err := w.WriteResult(result); err != nil {
		w.Close()
		return fmt.Errorf("write %s: %w", opts.Format, err)
	}
	return w.Close()
}
