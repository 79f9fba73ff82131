package app

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"surveyfit/domain/core"
	"surveyfit/domain/run"
	"surveyfit/domain/survey"
	"surveyfit/internal"
	"surveyfit/internal/config"
	"surveyfit/internal/dataset"
	"surveyfit/internal/encoder"
	"surveyfit/internal/errors"
	"surveyfit/internal/responses"
	"surveyfit/ports"
)

// CodeVersion is recorded in every run fingerprint
const CodeVersion = "surveyfit/0.3.0"

// PipelineService wires source, encoding, extraction, assembly, fitting and
// reporting into one run.
type PipelineService struct {
	source    ports.TableSourcePort
	fitter    ports.OrdinalFitterPort
	sinks     []ports.ReportSinkPort
	config    *config.Config
	logger    *internal.Logger
	encoder   *encoder.Encoder
	assembler *dataset.Assembler
}

// Prepared holds every intermediate table of a run, before any model is fitted
type Prepared struct {
	Raw       *survey.RawTable
	Encoded   *encoder.Encoded
	Extracted *responses.Extracted
	Table     *survey.AssembledTable
}

// NewPipelineService creates a pipeline service
func NewPipelineService(source ports.TableSourcePort, fitter ports.OrdinalFitterPort, sinks []ports.ReportSinkPort, cfg *config.Config, logger *internal.Logger) *PipelineService {
	encConfig := encoder.DefaultConfig()
	encConfig.MissingPolicy = cfg.Study.MissingControlPolicy

	return &PipelineService{
		source:    source,
		fitter:    fitter,
		sinks:     sinks,
		config:    cfg,
		logger:    logger.OrDefault("Pipeline"),
		encoder:   encoder.New(encConfig, logger),
		assembler: dataset.NewAssembler(logger),
	}
}

// Prepare fetches the table and builds the analysis table
func (s *PipelineService) Prepare(ctx context.Context) (*Prepared, error) {
	s.logger.Info("fetching %s", s.source.Describe())
	raw, err := s.source.Fetch(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", s.source.Describe())
	}
	s.logger.Info("fetched %d rows x %d columns", raw.RowCount(), len(raw.Headers))

	return s.PrepareTable(raw)
}

// PrepareTable builds the analysis table from an already fetched table
func (s *PipelineService) PrepareTable(raw *survey.RawTable) (*Prepared, error) {
	study := s.config.Study

	encoded, err := s.encoder.Encode(raw, study.ControlColumns)
	if err != nil {
		return nil, err
	}

	extractor := responses.NewExtractor(encoded.Names(), s.logger)
	extracted, err := extractor.Extract(raw, study.ControlColumns, study.ExcludedColumns)
	if err != nil {
		return nil, err
	}

	table, err := s.assembler.Assemble(raw.RowCount(), extracted.Dependents, encoded.Columns)
	if err != nil {
		return nil, err
	}

	if split := study.SplitIndicatorColumn; split != "" && !table.Has(split) {
		s.logger.Warn("split indicator %q is not an encoded column; group means will be undefined", split)
	}

	return &Prepared{Raw: raw, Encoded: encoded, Extracted: extracted, Table: table}, nil
}

// Run executes the whole pipeline and renders the report to every sink.
// Per-variable failures are part of the report, not errors.
func (s *PipelineService) Run(ctx context.Context) (*run.Report, error) {
	startedAt := core.Now()

	prepared, err := s.Prepare(ctx)
	if err != nil {
		return nil, err
	}

	report, err := s.Analyze(ctx, prepared, startedAt)
	if err != nil {
		return report, err
	}

	if err := s.Render(ctx, report); err != nil {
		return report, err
	}
	return report, nil
}

// Analyze fits every dependent of a prepared run and builds the report
func (s *PipelineService) Analyze(ctx context.Context, prepared *Prepared, startedAt core.Timestamp) (*run.Report, error) {
	study := s.config.Study

	runner := NewModelRunner(s.fitter, RunnerConfig{
		RegressorPolicy: study.RegressorPolicy,
		SplitIndicator:  study.SplitIndicatorColumn,
		Method:          s.config.Model.Method,
		Workers:         s.config.Model.Workers,
	}, s.logger)

	results, runErr := runner.Run(ctx, prepared.Table, prepared.Extracted.Dependents)

	manifest := run.Manifest{
		RunID:                core.NewRunID(),
		Study:                study.Name,
		Source:               s.source.Describe(),
		OptimizerMethod:      s.config.Model.Method,
		RegressorPolicy:      string(study.RegressorPolicy),
		MissingControlPolicy: string(study.MissingControlPolicy),
		SplitIndicator:       study.SplitIndicatorColumn,
		RowCount:             prepared.Raw.RowCount(),
		ControlCount:         len(study.ControlColumns),
		EncodedColumnCount:   len(prepared.Encoded.Columns),
		DependentCount:       len(prepared.Extracted.Dependents),
		AnalysisTableHash:    prepared.Table.Fingerprint(),
		Fingerprint:          run.NewRunFingerprint(prepared.Raw.Fingerprint(), StudyHash(s.config), CodeVersion),
		StartedAt:            startedAt,
		FinishedAt:           core.Now(),
	}

	report := &run.Report{
		Manifest:   manifest,
		Indicators: prepared.Encoded.Names(),
		Results:    results,
	}
	for _, d := range prepared.Extracted.Dependents {
		report.Dependents = append(report.Dependents, run.DependentInfo{Alias: d.Alias, Label: d.Label})
	}

	s.logger.Info("run %s: %d fitted, %d failed in %s", manifest.RunID, report.Fitted(),
		len(report.Failed()), manifest.FinishedAt.Sub(manifest.StartedAt).Round(time.Millisecond))

	if runErr != nil {
		return report, errors.Wrap(runErr, "model run interrupted")
	}
	return report, nil
}

// Render hands the finished report to every sink. All sinks are attempted;
// the first failure is returned.
func (s *PipelineService) Render(ctx context.Context, report *run.Report) error {
	var first error
	for _, sink := range s.sinks {
		if err := sink.Render(ctx, report); err != nil {
			s.logger.Error("report sink %s failed: %v", sink.Name(), err)
			if first == nil {
				first = errors.Wrapf(err, "render %s report", sink.Name())
			}
			continue
		}
		s.logger.Debug("report sink %s done", sink.Name())
	}
	return first
}

// StudyHash digests every setting that changes model output
func StudyHash(cfg *config.Config) core.Hash {
	h := core.NewHasher()
	study := cfg.Study
	for _, c := range study.ControlColumns {
		h.WriteString("control:" + c)
	}
	for _, c := range study.ExcludedColumns {
		h.WriteString("excluded:" + c)
	}
	h.WriteString("split:" + study.SplitIndicatorColumn)
	h.WriteString("missing:" + string(study.MissingControlPolicy))
	h.WriteString("regressors:" + string(study.RegressorPolicy))
	h.WriteString("method:" + cfg.Model.Method)
	h.WriteString("maxiter:" + strconv.Itoa(cfg.Model.MaxIterations))
	h.WriteString(fmt.Sprintf("gtol:%g", cfg.Model.GradientTolerance))
	return h.Sum()
}
