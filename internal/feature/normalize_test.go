package feature

import (
	"errors"
	"testing"
)

func TestFlatten(t *testing.T) {
	t.Run("SingleRecord", func(t *testing.T) {
		input := map[string]any{
			"occupation": "engineer",
			"receiver": map[string]any{
				"address": map[string]any{
					"countryCode": "US",
				},
			},
		}

		records, err := Flatten(input)
		if err != nil {
			t.Fatalf("flatten failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}

		if records[0]["occupation"] != "engineer" {
			t.Errorf("expected occupation 'engineer', got %v", records[0]["occupation"])
		}
		if records[0]["receiver.address.countryCode"] != "US" {
			t.Errorf("expected flattened receiver country 'US', got %v", records[0]["receiver.address.countryCode"])
		}
		if _, ok := records[0]["receiver"]; ok {
			t.Error("nested map should not survive flattening")
		}
	})

	t.Run("ListOfRecords", func(t *testing.T) {
		input := []any{
			map[string]any{"occupation": "engineer"},
			map[string]any{"occupation": "worker"},
		}

		records, err := Flatten(input)
		if err != nil {
			t.Fatalf("flatten failed: %v", err)
		}
		if len(records) != 2 {
			t.Fatalf("expected 2 records, got %d", len(records))
		}
		if records[1]["occupation"] != "worker" {
			t.Errorf("expected occupation 'worker', got %v", records[1]["occupation"])
		}
	})

	t.Run("TypedRecordSlice", func(t *testing.T) {
		input := []map[string]any{
			{"occupation": "engineer"},
		}

		records, err := Flatten(input)
		if err != nil {
			t.Fatalf("flatten failed: %v", err)
		}
		if len(records) != 1 {
			t.Fatalf("expected 1 record, got %d", len(records))
		}
	})

	t.Run("DeepNesting", func(t *testing.T) {
		input := map[string]any{
			"a": map[string]any{
				"b": map[string]any{
					"c": map[string]any{
						"d": 42,
					},
				},
			},
		}

		records, err := Flatten(input)
		if err != nil {
			t.Fatalf("flatten failed: %v", err)
		}
		if records[0]["a.b.c.d"] != 42 {
			t.Errorf("expected a.b.c.d = 42, got %v", records[0]["a.b.c.d"])
		}
	})

	t.Run("ScalarInput", func(t *testing.T) {
		_, err := Flatten("not a record")
		if !errors.Is(err, ErrInputFormat) {
			t.Errorf("expected ErrInputFormat, got %v", err)
		}
	})

	t.Run("ListWithNonMapElement", func(t *testing.T) {
		input := []any{
			map[string]any{"occupation": "engineer"},
			"not a record",
		}

		_, err := Flatten(input)
		if !errors.Is(err, ErrInputFormat) {
			t.Errorf("expected ErrInputFormat, got %v", err)
		}
	})

	t.Run("NilInput", func(t *testing.T) {
		_, err := Flatten(nil)
		if !errors.Is(err, ErrInputFormat) {
			t.Errorf("expected ErrInputFormat, got %v", err)
		}
	})
}

func TestColumnsSchema(t *testing.T) {
	if len(Columns) != 9 {
		t.Fatalf("expected 9 columns, got %d", len(Columns))
	}
	if len(CategoricalColumns) != 6 {
		t.Errorf("expected 6 categorical columns, got %d", len(CategoricalColumns))
	}
	if len(NumericColumns) != 3 {
		t.Errorf("expected 3 numeric columns, got %d", len(NumericColumns))
	}

	// Numeric columns come last, in derivation order
	want := []string{ColAge, ColIDVerified, ColCrossBorder}
	for i, col := range NumericColumns {
		if col != want[i] {
			t.Errorf("numeric column %d: expected %s, got %s", i, want[i], col)
		}
	}
}
