package coercer

import (
	"math"
	"strconv"
	"strings"

	"surveyfit/domain/survey"
)

// TypeCoercer recognises the storage kind of a column with deterministic rules
type TypeCoercer struct {
	config CoercionConfig
}

// CoercionConfig defines the coercion thresholds and rules
type CoercionConfig struct {
	NumericThreshold float64 `json:"numeric_threshold"` // share of non-missing values that must parse as numbers
	BooleanThreshold float64 `json:"boolean_threshold"` // share of non-missing values that must parse as booleans
	MaxCategories    int     `json:"max_categories"`    // categories above this are reported as suspicious
	LocaleNumbers    bool    `json:"locale_numbers"`    // accept "1.234,5", "(12)", currency symbols
}

// DefaultCoercionConfig matches how a CSV reader infers column dtypes:
// a column is numeric only if every non-missing value is a plain number.
func DefaultCoercionConfig() CoercionConfig {
	return CoercionConfig{
		NumericThreshold: 1.0,
		BooleanThreshold: 1.0,
		MaxCategories:    100,
		LocaleNumbers:    false,
	}
}

// NewTypeCoercer creates a coercer with the given config
func NewTypeCoercer(config CoercionConfig) *TypeCoercer {
	return &TypeCoercer{config: config}
}

// Config returns the active configuration
func (c *TypeCoercer) Config() CoercionConfig {
	return c.config
}

// TypeAnalysis contains the results of type distribution analysis
type TypeAnalysis struct {
	TotalCount      int               `json:"total_count"`
	ValidCount      int               `json:"valid_count"`
	NumericCount    int               `json:"numeric_count"`
	BooleanCount    int               `json:"boolean_count"`
	NumericRatio    float64           `json:"numeric_ratio"`
	BooleanRatio    float64           `json:"boolean_ratio"`
	RecommendedKind survey.ColumnKind `json:"recommended_kind"`
}

// AnalyzeColumn counts how many non-missing cells parse as each type and
// recommends a kind. A column with no values is categorical (no categories).
func (c *TypeCoercer) AnalyzeColumn(cells []survey.Cell) TypeAnalysis {
	analysis := TypeAnalysis{TotalCount: len(cells)}

	for _, cell := range cells {
		if cell.Missing {
			continue
		}
		analysis.ValidCount++
		if _, ok := c.ParseNumeric(cell.Text); ok {
			analysis.NumericCount++
		}
		if _, ok := c.ParseBoolean(cell.Text); ok {
			analysis.BooleanCount++
		}
	}

	if analysis.ValidCount == 0 {
		analysis.RecommendedKind = survey.KindCategorical
		return analysis
	}

	analysis.NumericRatio = float64(analysis.NumericCount) / float64(analysis.ValidCount)
	analysis.BooleanRatio = float64(analysis.BooleanCount) / float64(analysis.ValidCount)
	analysis.RecommendedKind = c.determineRecommendedKind(analysis)
	return analysis
}

// determineRecommendedKind chooses the best kind based on analysis
func (c *TypeCoercer) determineRecommendedKind(analysis TypeAnalysis) survey.ColumnKind {
	if analysis.NumericRatio >= c.config.NumericThreshold {
		return survey.KindNumeric
	}
	if analysis.BooleanRatio >= c.config.BooleanThreshold {
		return survey.KindBoolean
	}
	return survey.KindCategorical
}

// ParseNumeric parses a cell as a decimal float. Hex floats such as 0x1p3
// stay text.
func (c *TypeCoercer) ParseNumeric(strVal string) (float64, bool) {
	cleanVal := strings.TrimSpace(strVal)
	if cleanVal == "" {
		return 0, false
	}
	if c.config.LocaleNumbers {
		cleanVal = normalizeLocaleNumber(cleanVal)
	}
	if isHex(cleanVal) {
		return 0, false
	}

	val, err := strconv.ParseFloat(cleanVal, 64)
	if err != nil || math.IsInf(val, 0) || math.IsNaN(val) {
		return 0, false
	}
	return val, true
}

// ParseBoolean accepts the literal spellings a CSV reader turns into booleans
func (c *TypeCoercer) ParseBoolean(strVal string) (bool, bool) {
	switch strings.TrimSpace(strVal) {
	case "True", "TRUE", "true":
		return true, true
	case "False", "FALSE", "false":
		return false, true
	}
	return false, false
}

// normalizeLocaleNumber handles parentheses for negatives, European decimals
// and currency symbols: "(1.234,50 €)" -> "-1234.50".
func normalizeLocaleNumber(cleanVal string) string {
	isNegative := false
	if strings.HasPrefix(cleanVal, "(") && strings.HasSuffix(cleanVal, ")") {
		cleanVal = strings.TrimSuffix(strings.TrimPrefix(cleanVal, "("), ")")
		isNegative = true
	}

	for _, symbol := range []string{"R$", "$", "€", "£", "¥", "USD", "EUR", "BRL"} {
		cleanVal = strings.ReplaceAll(cleanVal, symbol, "")
	}
	cleanVal = strings.TrimSpace(strings.ReplaceAll(cleanVal, "%", ""))

	hasComma := strings.Contains(cleanVal, ",")
	hasPeriod := strings.Contains(cleanVal, ".")
	hasSpace := strings.Contains(cleanVal, " ")

	switch {
	case hasComma && (hasPeriod || hasSpace):
		commaIdx := strings.LastIndex(cleanVal, ",")
		afterComma := cleanVal[commaIdx+1:]
		if len(afterComma) <= 3 && isDigits(afterComma) {
			cleanVal = strings.ReplaceAll(cleanVal, ".", "")
			cleanVal = strings.ReplaceAll(cleanVal, " ", "")
			cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
		} else {
			cleanVal = strings.ReplaceAll(cleanVal, ",", "")
		}
	case hasComma:
		cleanVal = strings.ReplaceAll(cleanVal, ",", ".")
	default:
		cleanVal = strings.ReplaceAll(cleanVal, " ", "")
	}

	if isNegative {
		cleanVal = "-" + cleanVal
	}
	return cleanVal
}

func isHex(s string) bool {
	s = strings.TrimLeft(s, "+-")
	return strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X")
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
