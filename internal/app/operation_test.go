package app

import "testing"

func TestNewOperation(t *testing.T) {
	tests := []struct {
		name       string
		operation  string
		parameters string
	}{
		{
			name:       "with parameters",
			operation:  "MoveCategoryToRecycleBin",
			parameters: "id-1 move-up",
		},
		{
			name:       "empty parameters",
			operation:  "EmptyRecycleBin",
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
			if op.Status != StatusSuccess {
				t.Errorf("Status = %q, want %q", op.Status, StatusSuccess)
			}
			if op.Persisted() {
				t.Errorf("new operation reports Persisted() = true")
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
	op := NewOperation("RestoreItem", "id-3")
	op.Fail()
	if op.Status != StatusError {
		t.Errorf("Status = %q, want %q", op.Status, StatusError)
	}
}
