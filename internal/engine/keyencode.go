package engine

import (
	"fmt"

	"github.com/vectorbase/vectorbase/internal/storage"
)

// EncodeValue renders a Value as a stable string suitable for use as a
// hash-join build key or one component of a GROUP BY group key. NULL
// always encodes to the literal "NULL" so every null-valued row lands
// in the same group/bucket, matching the documented GROUP BY rule.
func EncodeValue(v storage.Value) string {
	switch v.Type {
	case storage.TypeNull:
		return "NULL"
	case storage.TypeInt:
		return fmt.Sprintf("i:%d", v.Int)
	case storage.TypeFloat:
		return fmt.Sprintf("f:%v", v.Float)
	case storage.TypeText:
		return "t:" + v.Text
	case storage.TypeBool:
		if v.Bool {
			return "b:1"
		}
		return "b:0"
	case storage.TypeEmbedding:
		return fmt.Sprintf("e:%v", v.Vec)
	default:
		return "?"
	}
}

// GroupKey concatenates the encoded values of a row's group-by
// expressions with a separator unlikely to collide with encoded
// content, per the documented "stable, string-encoded, null -> NULL"
// rule.
func GroupKey(values []storage.Value) string {
	var out string
	for i, v := range values {
		if i > 0 {
			out += "\x1f"
		}
		out += EncodeValue(v)
	}
	return out
}
