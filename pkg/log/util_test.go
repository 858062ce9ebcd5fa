package log

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestToFields(t *testing.T) {
	now := time.Now()
	err := errors.New("boom")

	tests := []struct {
		name  string
		input []any
	}{
		{"empty input", []any{}},
		{"string-int-bool", []any{"a", "x", "b", 123, "c", true}},
		{"time type", []any{"t", now}},
		{"float type", []any{"pi", 3.14}},
		{"bytes", []any{"data", []byte("xyz")}},
		{"error only", []any{err}},
		{"multiple errors", []any{err, errors.New("again")}},
		{"mixed field types", []any{"msg", "ok", zap.String("x", "y"), "num", 42}},
		{"odd number of args", []any{"key1", "val1", "key2"}},
		{"non-string key", []any{123, "value", true, 99}},
		{"nil values", []any{"a", nil, "b", (*int)(nil)}},
		{"map value", []any{"a", map[string]string{"xyz": "123"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := toFields(tt.input...)

			// must not panic
			if fields == nil && len(tt.input) > 0 {
				t.Errorf("nil fields for non-empty input: %v", tt.input)
			}

			// every field must carry a key
			for _, f := range fields {
				if f.Key == "" {
					t.Errorf("field has empty key: %+v", f)
				}
			}
		})
	}
}

func TestToFieldsTyped(t *testing.T) {
	fields := toFields("stage", "ROM", "progress", 50, "delay", 1500*time.Millisecond)
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}

	want := []string{"stage", "progress", "delay"}
	for i, f := range fields {
		if f.Key != want[i] {
			t.Errorf("fields[%d].Key = %q, want %q", i, f.Key, want[i])
		}
	}
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(o *Options)
		wantErr int
	}{
		{"defaults", func(o *Options) {}, 0},
		{"json format", func(o *Options) { o.Format = "json" }, 0},
		{"bad format", func(o *Options) { o.Format = "xml" }, 1},
		{"bad level", func(o *Options) { o.Level = "loud" }, 1},
		{"both bad", func(o *Options) { o.Format = "xml"; o.Level = "loud" }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := NewOptions()
			tt.mutate(o)
			if errs := o.Validate(); len(errs) != tt.wantErr {
				t.Errorf("Validate() returned %d errors, want %d: %v", len(errs), tt.wantErr, errs)
			}
		})
	}
}
