package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"surveyfit/adapters/api"
	"surveyfit/adapters/excel"
	"surveyfit/adapters/report"
	"surveyfit/adapters/stats/ordinal"
	"surveyfit/app"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/config"
	"surveyfit/internal/dataset"
	"surveyfit/internal/errors"
	"surveyfit/internal/testkit"
	"surveyfit/ports"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// options are the flags shared by every pipeline command. Flags win over
// environment variables, which win over the study file.
type options struct {
	studyFile string
	source    string
	format    string
	method    string
	workers   int
	logLevel  string
	reportDir string
	formats   string
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	var opts options
	rootCmd := &cobra.Command{
		Use:          "surveyfit",
		Short:        "Ordered logit models for every question of a survey export",
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.studyFile, "study", "", "Study definition YAML (default $STUDY_FILE)")
	flags.StringVar(&opts.source, "source", "", "Table URL or local .csv/.xlsx path (overrides source_url)")
	flags.StringVar(&opts.format, "format", "", "Source format: csv|json|xlsx (default: detect)")
	flags.StringVar(&opts.method, "method", "", "Optimizer: lbfgs|bfgs|cg|nm")
	flags.IntVar(&opts.workers, "workers", 0, "Variables fitted concurrently")
	flags.StringVar(&opts.logLevel, "log-level", "", "ERROR|WARN|INFO|DEBUG|TRACE")
	flags.StringVar(&opts.reportDir, "report-dir", "", "Directory for report files")
	flags.StringVar(&opts.formats, "formats", "", "Comma separated report formats: text,json,xlsx,html")

	rootCmd.AddCommand(
		newRunCmd(&opts),
		newAliasesCmd(&opts),
		newAssembleCmd(&opts),
		newSynthCmd(),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRunCmd(opts *options) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fit one ordered logit per dependent question and write the reports",
		Long: `Fetch the survey table, encode the control columns, extract ordinal codes
from every other non-excluded column and fit an ordered logit for each one.

Per-question failures (constant answers, too few rows, non-convergence) are
recorded in the report and do not stop the run.

Example: surveyfit run --study configs/study.yaml --formats text,json,xlsx`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			service, err := newService(cfg, logger, !quiet)
			if err != nil {
				return err
			}

			rep, err := service.Run(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d of %d questions fitted; reports in %s\n",
				rep.Fitted(), len(rep.Results), cfg.Report.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Do not echo the text report to stdout")
	return cmd
}

func newAliasesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "aliases",
		Short: "List the dependent questions with their generated aliases",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			service, err := newService(cfg, logger, false)
			if err != nil {
				return err
			}
			prepared, err := service.Prepare(cmd.Context())
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ALIAS\tOBSERVED\tQUESTION")
			for _, d := range prepared.Extracted.Dependents {
				observed := 0
				for _, v := range d.Values {
					if !survey.IsMissing(v) {
						observed++
					}
				}
				fmt.Fprintf(w, "%s\t%d\t%s\n", d.Alias, observed, strings.TrimSpace(d.Label))
			}
			fmt.Fprintln(w)
			fmt.Fprintf(w, "INDICATORS\t%d\t%s\n", len(prepared.Encoded.Columns), strings.Join(prepared.Encoded.Names(), ", "))
			return w.Flush()
		},
	}
}

func newAssembleCmd(opts *options) *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "assemble",
		Short: "Write the assembled analysis table (codes + indicators) as CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := loadConfig(opts)
			if err != nil {
				return err
			}
			service, err := newService(cfg, logger, false)
			if err != nil {
				return err
			}
			prepared, err := service.Prepare(cmd.Context())
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return errors.Wrapf(err, "create %s", out)
				}
				defer file.Close()
				w = file
			}
			if err := dataset.WriteCSV(w, prepared.Table); err != nil {
				return errors.Wrap(err, "write analysis table")
			}
			logger.Info("analysis table: %d rows x %d columns, hash %s",
				prepared.Table.RowCount(), len(prepared.Table.Names()), prepared.Table.Fingerprint())
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	return cmd
}

func newSynthCmd() *cobra.Command {
	var out string
	var respondents int
	var seed int64
	var constant bool

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Write a synthetic questionnaire export for trying the pipeline",
		Long: `Generate a reproducible survey export with known effects: male respondents
and politically engaged respondents answer some questions higher.

Example: surveyfit synth -o respostas.csv --respondents 500 --seed 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			genConfig := testkit.DefaultSurveyConfig()
			genConfig.RespondentCount = respondents
			genConfig.Seed = seed
			genConfig.ConstantQuestion = constant
			table := testkit.NewSurveyDataGenerator(genConfig).Generate()

			w := cmd.OutOrStdout()
			if out != "" && out != "-" {
				file, err := os.Create(out)
				if err != nil {
					return errors.Wrapf(err, "create %s", out)
				}
				defer file.Close()
				w = file
			}
			return testkit.WriteCSV(w, table)
		},
	}

	cmd.Flags().StringVarP(&out, "out", "o", "-", "Output file (- for stdout)")
	cmd.Flags().IntVar(&respondents, "respondents", 300, "Number of respondents")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Random seed")
	cmd.Flags().BoolVar(&constant, "constant", false, "Add a question everyone answers the same way")
	return cmd
}

// loadConfig reads study file and environment, then applies flags
func loadConfig(opts *options) (*config.Config, *internal.Logger, error) {
	cfg, err := config.Load(opts.studyFile)
	if err != nil {
		return nil, nil, err
	}
	if err := applyFlags(cfg, opts); err != nil {
		return nil, nil, err
	}
	return cfg, internal.NewLogger(internal.ParseLogLevel(cfg.LogLevel)), nil
}

func applyFlags(cfg *config.Config, opts *options) error {
	if opts.source != "" {
		cfg.Source.URL = opts.source
	}
	if opts.format != "" {
		cfg.Source.Format = strings.ToLower(opts.format)
	}
	if opts.method != "" {
		cfg.SetOptimizerMethod(opts.method)
	}
	if opts.workers > 0 {
		cfg.Model.Workers = opts.workers
	}
	if opts.logLevel != "" {
		cfg.LogLevel = opts.logLevel
	}
	if opts.reportDir != "" {
		cfg.Report.Dir = opts.reportDir
	}
	if opts.formats != "" {
		cfg.Report.Formats = config.SplitList(opts.formats)
	}
	return cfg.Validate()
}

// newService wires the adapters for the configured source
func newService(cfg *config.Config, logger *internal.Logger, echo bool) (*app.PipelineService, error) {
	source, err := newSource(cfg, logger)
	if err != nil {
		return nil, err
	}
	sinks, err := report.NewSinks(cfg.Report.Formats, cfg.Report.Dir, echo, logger)
	if err != nil {
		return nil, err
	}
	fitter := ordinal.NewFitter(ordinal.Settings{
		Method:            cfg.Model.Method,
		MaxIterations:     cfg.Model.MaxIterations,
		GradientTolerance: cfg.Model.GradientTolerance,
	}, logger)
	return app.NewPipelineService(source, fitter, sinks, cfg, logger), nil
}

// newSource picks the HTTP source for http(s) URLs and the file reader otherwise
func newSource(cfg *config.Config, logger *internal.Logger) (ports.TableSourcePort, error) {
	location := strings.TrimSpace(cfg.Source.URL)
	if location == "" {
		return nil, errors.ConfigInvalid("no source: set source_url in the study file, SOURCE_URL or --source")
	}

	readerConfig := excel.ReaderConfig{
		MissingMarkers: cfg.Study.MissingMarkers,
		Delimiter:      cfg.Source.Delimiter,
		Sheet:          cfg.Source.Sheet,
	}

	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		sourceConfig := api.DefaultSourceConfig(location)
		sourceConfig.Format = cfg.Source.Format
		sourceConfig.RecordsPath = cfg.Source.RecordsPath
		sourceConfig.Timeout = cfg.Source.Timeout
		sourceConfig.Retries = cfg.Source.Retries
		sourceConfig.Backoff = cfg.Source.Backoff
		sourceConfig.Reader = readerConfig
		return api.NewHTTPSource(sourceConfig, logger), nil
	}

	if cfg.Source.Format == "json" {
		return nil, errors.ConfigInvalid("json sources must be fetched over http(s)")
	}
	return excel.NewDataReader(location, readerConfig, logger), nil
}
