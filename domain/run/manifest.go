package run

import (
	"surveyfit/domain/core"
)

// Manifest captures the audit metadata of one pipeline run
type Manifest struct {
	RunID                core.RunID     `json:"run_id"`
	Study                string         `json:"study"`
	Source               string         `json:"source"`
	OptimizerMethod      string         `json:"optimizer_method"`
	RegressorPolicy      string         `json:"regressor_policy"`
	MissingControlPolicy string         `json:"missing_control_policy"`
	SplitIndicator       string         `json:"split_indicator_column"`
	RowCount             int            `json:"row_count"`
	ControlCount         int            `json:"control_count"`
	EncodedColumnCount   int            `json:"encoded_column_count"`
	DependentCount       int            `json:"dependent_count"`
	AnalysisTableHash    core.Hash      `json:"analysis_table_hash"`
	Fingerprint          RunFingerprint `json:"fingerprint"`
	StartedAt            core.Timestamp `json:"started_at"`
	FinishedAt           core.Timestamp `json:"finished_at"`
}

// Validate checks if the manifest is complete
func (m *Manifest) Validate() error {
	if core.ID(m.RunID).IsEmpty() {
		return core.NewValidationError("run_manifest", "run_id cannot be empty")
	}
	if m.Source == "" {
		return core.NewValidationError("run_manifest", "source cannot be empty")
	}
	if m.Fingerprint.Fingerprint.IsEmpty() {
		return core.NewValidationError("run_manifest", "fingerprint cannot be empty")
	}
	if m.Fingerprint.CodeVersion == "" {
		return core.NewValidationError("run_manifest", "code_version cannot be empty")
	}
	return nil
}
