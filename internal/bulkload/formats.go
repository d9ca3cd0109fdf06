package bulkload

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"
)

// ImportFile detects the file format from its extension (or content,
// if the extension is unrecognized) and imports it into a table
// reachable through conn. Supports CSV, TSV, and JSON (array of
// objects); transparently handles a trailing .gz.
func ImportFile(
	ctx context.Context,
	conn *engine.Conn,
	tableName string,
	filePath string,
	opts *ImportOptions,
) (*ImportResult, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer f.Close()

	ext := strings.ToLower(filepath.Ext(filePath))
	if tableName == "" {
		base := filepath.Base(filePath)
		tableName = sanitizeTableName(strings.TrimSuffix(base, filepath.Ext(base)))
	}
	if ext == ".gz" {
		base := strings.TrimSuffix(filePath, ".gz")
		ext = strings.ToLower(filepath.Ext(base))
	}

	switch ext {
	case ".csv":
		if opts == nil {
			opts = &ImportOptions{}
		}
		if len(opts.DelimiterCandidates) == 0 {
			opts.DelimiterCandidates = []rune{','}
		}
		return ImportCSV(ctx, conn, tableName, f, opts)
	case ".tsv", ".tab":
		if opts == nil {
			opts = &ImportOptions{}
		}
		opts.DelimiterCandidates = []rune{'\t'}
		return ImportCSV(ctx, conn, tableName, f, opts)
	case ".json":
		return ImportJSON(ctx, conn, tableName, maybeGzip(f), opts)
	default:
		return importByContent(ctx, conn, tableName, f, opts)
	}
}

func importByContent(
	ctx context.Context,
	conn *engine.Conn,
	tableName string,
	f *os.File,
	opts *ImportOptions,
) (*ImportResult, error) {
	br := bufio.NewReader(f)
	peek, _ := br.Peek(512)

	trimmed := strings.TrimSpace(string(peek))
	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		f.Seek(0, 0)
		return ImportJSON(ctx, conn, tableName, f, opts)
	}

	f.Seek(0, 0)
	return ImportCSV(ctx, conn, tableName, f, opts)
}

// sanitizeTableName converts a filename to a valid table identifier.
func sanitizeTableName(name string) string {
	name = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '_' {
			return r
		}
		return '_'
	}, name)
	name = strings.TrimLeftFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
	if name == "" {
		name = "imported_table"
	}
	return name
}

// ImportJSON imports an array of objects ([{"id": 1, "name": "Alice"}, ...])
// from a reader into a table reachable through conn.
func ImportJSON(
	ctx context.Context,
	conn *engine.Conn,
	tableName string,
	src io.Reader,
	opts *ImportOptions,
) (*ImportResult, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}
	applyDefaults(opts)

	result := &ImportResult{Encoding: "utf-8", Errors: make([]string, 0)}

	dec := json.NewDecoder(src)
	token, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("read JSON: %w", err)
	}

	var records []map[string]any
	delim, ok := token.(json.Delim)
	if !ok || delim != '[' {
		return nil, fmt.Errorf("unsupported JSON format: expected array of objects like [{...}, {...}]")
	}
	for dec.More() {
		var rec map[string]any
		if err := dec.Decode(&rec); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("decode record: %v", err))
			continue
		}
		records = append(records, rec)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records found in JSON")
	}

	colNames := make([]string, 0, len(records[0]))
	for key := range records[0] {
		colNames = append(colNames, key)
	}
	colNames = sanitizeColumnNames(colNames)
	result.ColumnNames = colNames

	sampleData := make([][]string, 0, len(records))
	for _, rec := range records {
		row := make([]string, len(colNames))
		for i, col := range colNames {
			if val, ok := rec[col]; ok && val != nil {
				row[i] = fmt.Sprintf("%v", val)
			}
		}
		sampleData = append(sampleData, row)
	}

	var colTypes []storage.ColType
	if opts.TypeInference {
		colTypes = inferColumnTypes(sampleData, len(colNames), opts)
	} else {
		colTypes = make([]storage.ColType, len(colNames))
		for i := range colTypes {
			colTypes[i] = storage.ColText
		}
	}
	result.ColumnTypes = colTypes

	if opts.CreateTable {
		if err := createTable(ctx, conn, tableName, colNames, colTypes); err != nil {
			return nil, err
		}
	}
	if opts.Truncate {
		if err := truncateTable(ctx, conn, tableName); err != nil {
			return nil, err
		}
	}

	rows, skipped, errs := insertAllRecords(ctx, conn, tableName, colNames, colTypes, sampleData, opts)
	result.RowsInserted = rows
	result.RowsSkipped = skipped
	result.Errors = append(result.Errors, errs...)

	return result, nil
}

// OpenFile opens a data file and returns a ready-to-query Database
// with its data loaded, plus the table name it loaded into. A
// convenience for quick data exploration.
func OpenFile(ctx context.Context, filePath string, opts *ImportOptions) (*engine.Database, string, error) {
	db := engine.NewDatabase(engine.DefaultConfig())
	conn := db.Connect()

	tableName := ""
	if opts != nil && opts.TableName != "" {
		tableName = opts.TableName
	} else {
		base := filepath.Base(filePath)
		tableName = sanitizeTableName(strings.TrimSuffix(base, filepath.Ext(base)))
	}

	if _, err := ImportFile(ctx, conn, tableName, filePath, opts); err != nil {
		return nil, "", err
	}
	return db, tableName, nil
}
