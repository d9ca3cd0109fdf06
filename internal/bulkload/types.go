package bulkload

import (
	"strconv"
	"strings"
	"time"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// inferColumnTypes analyzes sample data to determine the best column
// type for each column. It tries in order: BOOL -> INT -> FLOAT -> TEXT.
func inferColumnTypes(sampleData [][]string, numCols int, opts *ImportOptions) []storage.ColType {
	types := make([]storage.ColType, numCols)

	votes := make([]map[storage.ColType]int, numCols)
	for i := range votes {
		votes[i] = make(map[storage.ColType]int)
	}

	for _, row := range sampleData {
		for colIdx := 0; colIdx < numCols; colIdx++ {
			var val string
			if colIdx < len(row) {
				val = strings.TrimSpace(row[colIdx])
			}
			if isNullValue(val, opts.NullLiterals) {
				continue
			}
			votes[colIdx][detectValueType(val)]++
		}
	}

	for colIdx := 0; colIdx < numCols; colIdx++ {
		types[colIdx] = determineColumnType(votes[colIdx])
	}
	return types
}

// detectValueType attempts to parse a single value and returns its
// most specific type.
func detectValueType(val string) storage.ColType {
	if val == "" {
		return storage.ColText
	}
	if isBoolLike(val) {
		return storage.ColBool
	}
	if isIntLike(val) {
		return storage.ColInt
	}
	if isFloatLike(val) {
		return storage.ColFloat
	}
	return storage.ColText
}

func isBoolLike(val string) bool {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "false", "yes", "no":
		return true
	case "t", "f", "y", "n":
		return len(val) == 1
	default:
		return false
	}
}

func isIntLike(val string) bool {
	_, err := strconv.ParseInt(strings.TrimSpace(val), 10, 64)
	return err == nil
}

func isFloatLike(val string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	return err == nil
}

// determineColumnType picks the final type based on vote counts:
// the most specific type covering at least 80% of non-null values,
// falling back to TEXT.
func determineColumnType(votes map[storage.ColType]int) storage.ColType {
	totalVotes := 0
	for _, count := range votes {
		totalVotes += count
	}
	if totalVotes == 0 {
		return storage.ColText
	}

	boolCount := votes[storage.ColBool]
	intCount := votes[storage.ColInt]
	floatCount := votes[storage.ColFloat]
	threshold := float64(totalVotes) * 0.80

	if float64(boolCount) >= threshold {
		return storage.ColBool
	}
	if float64(intCount) >= threshold && floatCount == 0 {
		return storage.ColInt
	}
	if float64(intCount+floatCount) >= threshold {
		return storage.ColFloat
	}
	return storage.ColText
}

func isNullValue(val string, nullLiterals []string) bool {
	trimmed := strings.ToLower(strings.TrimSpace(val))
	for _, nl := range nullLiterals {
		if trimmed == strings.ToLower(strings.TrimSpace(nl)) {
			return true
		}
	}
	return false
}

// convertValue converts a string value to the Go type matching
// colType, or nil for a recognized null literal.
func convertValue(val string, colType storage.ColType, nullLiterals []string) (any, error) {
	val = strings.TrimSpace(val)
	if isNullValue(val, nullLiterals) {
		return nil, nil
	}
	switch colType {
	case storage.ColBool:
		return parseBool(val)
	case storage.ColInt:
		return strconv.ParseInt(val, 10, 64)
	case storage.ColFloat:
		return strconv.ParseFloat(val, 64)
	default:
		return val, nil
	}
}

func parseBool(val string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "true", "t", "yes", "y", "1":
		return true, nil
	case "false", "f", "no", "n", "0":
		return false, nil
	default:
		return strconv.ParseBool(val)
	}
}

// defaultDateTimeFormats exists only so ImportOptions keeps a
// DateTimeFormats field for forward compatibility with a future
// TIME/DATE column type; unused by current conversion logic.
func defaultDateTimeFormats() []string {
	return []string{
		time.RFC3339,
		"2006-01-02",
		"2006-01-02 15:04:05",
	}
}
