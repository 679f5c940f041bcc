package app

import (
	"errors"
	"testing"
)

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "Restore",
			parameters: "catsync-20240115T103000Z.json.gz strategy=smart",
		},
		{
			name:       "empty parameters",
			operation:  "Backup",
			parameters: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := NewOperation(tt.operation, tt.parameters)

			if op.Operation != tt.operation {
				t.Errorf("Operation = %q, want %q", op.Operation, tt.operation)
			}
			if op.Parameters != tt.parameters {
				t.Errorf("Parameters = %q, want %q", op.Parameters, tt.parameters)
			}
			if op.Status != "success" {
				t.Errorf("Status = %q, want %q", op.Status, "success")
			}
			if op.ID != 0 {
				t.Errorf("ID = %d, want 0", op.ID)
			}
		})
	}
}

func TestOperation_Persisted(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want bool
	}{
		{name: "not persisted when ID is 0", id: 0, want: false},
		{name: "persisted when ID is positive", id: 1, want: true},
		{name: "persisted when ID is large", id: 99999, want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			op := &Operation{ID: tt.id}
			if got := op.Persisted(); got != tt.want {
				t.Errorf("Persisted() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestOperation_Fail(t *testing.T) {
	op := NewOperation("Rollback", "")

	if err := op.Fail(nil); err != nil || op.Status != "success" {
		t.Errorf("Fail(nil) = %v, Status = %q; want nil, success", err, op.Status)
	}

	boom := errors.New("boom")
	if err := op.Fail(boom); err != boom {
		t.Errorf("Fail() = %v, want the given error", err)
	}
	if op.Status != "error" {
		t.Errorf("Status = %q, want error", op.Status)
	}
}
