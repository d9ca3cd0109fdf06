package bulkload

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/vectorbase/vectorbase/internal/engine"
	"github.com/vectorbase/vectorbase/internal/storage"
)

// createTable issues CREATE TABLE IF NOT EXISTS for the given columns
// and types, via the same SQL path any other caller of Conn.Execute
// uses, so an import gets the same validation and WAL coverage as
// hand-written DDL.
func createTable(ctx context.Context, conn *engine.Conn, tableName string, colNames []string, colTypes []storage.ColType) error {
	defs := make([]string, len(colNames))
	for i, name := range colNames {
		defs[i] = fmt.Sprintf("%s %s", quoteIdent(name), colTypeName(colTypes[i]))
	}
	sqlText := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(tableName), strings.Join(defs, ", "))
	_, err := conn.Execute(ctx, sqlText)
	return err
}

// truncateTable removes every row from an existing table.
func truncateTable(ctx context.Context, conn *engine.Conn, tableName string) error {
	_, err := conn.Execute(ctx, fmt.Sprintf("DELETE FROM %s", quoteIdent(tableName)))
	return err
}

// insertAllRecords converts and inserts every record in opts.BatchSize
// batches, returning the count inserted/skipped and any non-fatal
// per-row errors collected along the way.
func insertAllRecords(
	ctx context.Context,
	conn *engine.Conn,
	tableName string,
	colNames []string,
	colTypes []storage.ColType,
	records [][]string,
	opts *ImportOptions,
) (inserted int64, skipped int64, errs []string) {
	batch := make([][]any, 0, opts.BatchSize)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		sqlText := buildInsert(tableName, colNames, batch)
		_, err := conn.Execute(ctx, sqlText)
		batch = batch[:0]
		return err
	}

	for i, rec := range records {
		row := make([]any, len(colNames))
		rowErr := false
		for j := range colNames {
			var raw string
			if j < len(rec) {
				raw = rec[j]
			}
			v, err := convertValue(raw, colTypes[j], opts.NullLiterals)
			if err != nil {
				if opts.StrictTypes {
					errs = append(errs, fmt.Sprintf("row %d, col %s: %v", i+1, colNames[j], err))
					skipped++
					rowErr = true
					break
				}
				v = raw
			}
			row[j] = v
		}
		if rowErr {
			continue
		}
		batch = append(batch, row)
		if len(batch) >= opts.BatchSize {
			n := int64(len(batch))
			if err := flush(); err != nil {
				errs = append(errs, fmt.Sprintf("batch insert: %v", err))
				skipped += n
				batch = batch[:0]
				continue
			}
			inserted += int64(opts.BatchSize)
		}
	}
	remaining := int64(len(batch))
	if err := flush(); err != nil {
		errs = append(errs, fmt.Sprintf("batch insert: %v", err))
		skipped += remaining
	} else {
		inserted += remaining
	}
	return inserted, skipped, errs
}

// buildInsert renders a multi-row INSERT statement as SQL text. This
// mirrors the driver package's own literal-escaping rules, since both
// ultimately hand text to the same parser.
func buildInsert(tableName string, colNames []string, rows [][]any) string {
	quotedCols := make([]string, len(colNames))
	for i, c := range colNames {
		quotedCols[i] = quoteIdent(c)
	}
	var sb strings.Builder
	sb.WriteString("INSERT INTO ")
	sb.WriteString(quoteIdent(tableName))
	sb.WriteString(" (")
	sb.WriteString(strings.Join(quotedCols, ", "))
	sb.WriteString(") VALUES ")
	for i, row := range rows {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(")
		for j, v := range row {
			if j > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(literal(v))
		}
		sb.WriteString(")")
	}
	return sb.String()
}

func literal(v any) string {
	if v == nil {
		return "NULL"
	}
	switch x := v.(type) {
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case bool:
		if x {
			return "TRUE"
		}
		return "FALSE"
	case string:
		return "'" + strings.ReplaceAll(x, "'", "''") + "'"
	default:
		return "'" + strings.ReplaceAll(fmt.Sprintf("%v", x), "'", "''") + "'"
	}
}

func quoteIdent(name string) string { return name }

func colTypeName(t storage.ColType) string {
	switch t {
	case storage.ColInt:
		return "INT"
	case storage.ColFloat:
		return "FLOAT"
	case storage.ColBool:
		return "BOOL"
	case storage.ColEmbedding:
		return "EMBEDDING"
	default:
		return "TEXT"
	}
}
