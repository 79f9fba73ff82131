package ports

import (
	"context"

	"surveyfit/domain/survey"
)

// TableSourcePort fetches the respondent table the pipeline runs over.
// Implementations block until the whole table is in memory.
type TableSourcePort interface {
	// Fetch returns the raw table
	Fetch(ctx context.Context) (*survey.RawTable, error)

	// Describe names the source for logs and the run manifest
	Describe() string
}
