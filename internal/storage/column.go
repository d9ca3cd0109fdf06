package storage

import "fmt"

// ColType enumerates the column data types the engine understands.
// Grounded on tinySQL's ColType enum (internal/storage/db.go), trimmed
// to the five variants the base spec's Value union actually carries.
type ColType int

const (
	ColInt ColType = iota
	ColFloat
	ColText
	ColBool
	ColEmbedding
)

func (t ColType) String() string {
	switch t {
	case ColInt:
		return "INT"
	case ColFloat:
		return "FLOAT"
	case ColText:
		return "TEXT"
	case ColBool:
		return "BOOL"
	case ColEmbedding:
		return "EMBEDDING"
	default:
		return "UNKNOWN"
	}
}

func (t ColType) ValueType() ValueType {
	switch t {
	case ColInt:
		return TypeInt
	case ColFloat:
		return TypeFloat
	case ColText:
		return TypeText
	case ColBool:
		return TypeBool
	case ColEmbedding:
		return TypeEmbedding
	default:
		return TypeNull
	}
}

// Column describes one column of a table schema. Dimension is only
// meaningful (and required > 0) when Type == ColEmbedding.
type Column struct {
	Name      string
	Type      ColType
	Dimension int
}

// Schema is the ordered column list of a table.
type Schema struct {
	Columns []Column
}

func (s *Schema) ColumnIndex(name string) int {
	for i, c := range s.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func (s *Schema) Column(name string) (Column, bool) {
	idx := s.ColumnIndex(name)
	if idx < 0 {
		return Column{}, false
	}
	return s.Columns[idx], true
}

// Validate checks that a value is compatible with a column's declared
// type, including the embedding dimension check.
func (c Column) Validate(v Value) error {
	if v.IsNull() {
		return nil
	}
	if v.Type != c.Type.ValueType() {
		return newErr(KindTypeMismatch, fmt.Sprintf("column %q expects %s, got %s", c.Name, c.Type, v.Type), nil)
	}
	if c.Type == ColEmbedding && len(v.Vec) != c.Dimension {
		return newErr(KindTypeMismatch, fmt.Sprintf("column %q expects embedding dimension %d, got %d", c.Name, c.Dimension, len(v.Vec)), nil)
	}
	return nil
}
