package excel

// ReaderConfig controls how delimited and workbook files become raw tables
type ReaderConfig struct {
	MissingMarkers []string `json:"missing_markers"` // cell texts read as missing
	Delimiter      rune     `json:"delimiter"`
	Sheet          string   `json:"sheet"` // workbook sheet; empty means the first one
}

// DefaultReaderConfig returns comma-delimited CSV with blank cells as missing
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		MissingMarkers: []string{""},
		Delimiter:      ',',
	}
}

func (c ReaderConfig) markerSet() map[string]struct{} {
	set := make(map[string]struct{}, len(c.MissingMarkers))
	for _, m := range c.MissingMarkers {
		set[m] = struct{}{}
	}
	return set
}
