package run

import (
	"crypto/sha256"
	"fmt"

	"surveyfit/domain/core"
	"surveyfit/domain/survey"
)

// RunFingerprint ensures deterministic replay: two runs over the same input
// with the same study settings produce the same fingerprint.
type RunFingerprint struct {
	TableHash   core.Hash `json:"table_hash"`
	StudyHash   core.Hash `json:"study_hash"`
	CodeVersion string    `json:"code_version"`
	Fingerprint core.Hash `json:"fingerprint"` // Hash of all above
}

// NewRunFingerprint creates a fingerprint from determinism parameters
func NewRunFingerprint(tableHash, studyHash core.Hash, codeVersion string) RunFingerprint {
	data := fmt.Sprintf("table:%s|study:%s|code:%s", tableHash, studyHash, codeVersion)
	hash := sha256.Sum256([]byte(data))

	return RunFingerprint{
		TableHash:   tableHash,
		StudyHash:   studyHash,
		CodeVersion: codeVersion,
		Fingerprint: core.Hash(fmt.Sprintf("%x", hash)),
	}
}

// DependentInfo maps an alias back to the question it came from
type DependentInfo struct {
	Alias string `json:"alias"`
	Label string `json:"label"`
}

// Report is the machine-readable outcome of one run
type Report struct {
	Manifest   Manifest             `json:"manifest"`
	Dependents []DependentInfo      `json:"dependents"`
	Indicators []string             `json:"indicators"`
	Results    []survey.ModelResult `json:"results"`
}

// Failed returns the results that did not produce a model
func (r *Report) Failed() []survey.ModelResult {
	var failed []survey.ModelResult
	for _, res := range r.Results {
		if !res.OK() {
			failed = append(failed, res)
		}
	}
	return failed
}

// Fitted counts the results that produced a model
func (r *Report) Fitted() int {
	return len(r.Results) - len(r.Failed())
}
