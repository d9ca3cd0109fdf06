package storage

import "testing"

func TestEncodeDecodeRowRoundTrip(t *testing.T) {
	row := map[string]Value{
		"name":  TextValue("widget"),
		"count": IntValue(42),
		"price": FloatValue(3.5),
		"ok":    BoolValue(true),
		"vec":   EmbeddingValue([]float32{0.1, 0.2, 0.3}),
		"note":  Null,
	}
	encoded := EncodeRow(row)
	decoded, err := DecodeRow(encoded)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != len(row) {
		t.Fatalf("expected %d columns, got %d", len(row), len(decoded))
	}
	for k, v := range row {
		if !Equal(decoded[k], v) {
			t.Errorf("column %q: expected %v, got %v", k, v, decoded[k])
		}
	}
}

func TestEncodeRowDeterministic(t *testing.T) {
	row := map[string]Value{"b": IntValue(2), "a": IntValue(1), "c": IntValue(3)}
	first := EncodeRow(row)
	second := EncodeRow(row)
	if len(first) != len(second) {
		t.Fatal("two encodings of the same map should have identical length")
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("encoding is not deterministic at byte %d", i)
		}
	}
}

func TestDecodeRowTruncatedInput(t *testing.T) {
	if _, err := DecodeRow([]byte{1, 2}); err == nil {
		t.Fatal("expected an error decoding a truncated buffer")
	}
}

func TestEncodeDecodeUpdatePayloadRoundTrip(t *testing.T) {
	oldRow := map[string]Value{"x": IntValue(1)}
	newRow := map[string]Value{"x": IntValue(2)}
	payload := EncodeUpdatePayload(oldRow, newRow)

	decodedOld, decodedNew, err := DecodeUpdatePayload(payload)
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(decodedOld["x"], oldRow["x"]) {
		t.Error("old row did not round-trip")
	}
	if !Equal(decodedNew["x"], newRow["x"]) {
		t.Error("new row did not round-trip")
	}
}
