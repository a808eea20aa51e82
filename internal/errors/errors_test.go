package errors

import (
	"fmt"
	"strings"
	"testing"
)

func TestCategories(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		validation bool
		retriable  bool
		notFound   bool
	}{
		{"invalid config", NewValidation("slot.length", "must be positive"), true, false, false},
		{"missing field", NewMissingField("emission.object_path"), true, false, false},
		{"store down", fmt.Errorf("put record: %w", ErrStoreUnavailable), false, true, false},
		{"rejected", fmt.Errorf("duckdb: %w", ErrRecordRejected), false, true, false},
		{"not found", fmt.Errorf("TPC/Calib/MIPS at 100: %w", ErrRecordNotFound), false, false, true},
		{"corrupt", ErrCorruptRecord, false, false, false},
		{"joined", Join(NewValidation("slot.length", "x"), ErrStoreUnavailable), true, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidation(tt.err); got != tt.validation {
				t.Errorf("IsValidation: expected %v, got %v", tt.validation, got)
			}
			if got := IsRetriable(tt.err); got != tt.retriable {
				t.Errorf("IsRetriable: expected %v, got %v", tt.retriable, got)
			}
			if got := IsNotFound(tt.err); got != tt.notFound {
				t.Errorf("IsNotFound: expected %v, got %v", tt.notFound, got)
			}
		})
	}
}

func TestInvalidValueMessage(t *testing.T) {
	err := NewInvalidValue("histogram.bins", -1, "must be positive")
	if !strings.Contains(err.Error(), "invalid histogram.bins '-1': must be positive") {
		t.Errorf("unexpected message: %s", err.Error())
	}
}
