package errors

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *Error
		contains []string
	}{
		{
			name: "full error",
			err: &Error{
				Phase:  PhaseInvoke,
				Kind:   KindInvocation,
				Name:   "main",
				Detail: "trap",
			},
			contains: []string{"[invoke]", "invocation", "at main", "trap"},
		},
		{
			name: "minimal error",
			err: &Error{
				Phase: PhaseExtract,
				Kind:  KindMemoryAccess,
			},
			contains: []string{"[extract]", "memory_access"},
		},
		{
			name: "error with cause",
			err: &Error{
				Phase:  PhaseInject,
				Kind:   KindAllocation,
				Detail: "heap full",
				Cause:  errors.New("underlying error"),
			},
			contains: []string{"[inject]", "allocation", "heap full", "caused by", "underlying error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := tt.err.Error()
			for _, s := range tt.contains {
				if !strings.Contains(msg, s) {
					t.Errorf("error message %q does not contain %q", msg, s)
				}
			}
		})
	}
}

func TestError_Unwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := &Error{
		Phase: PhaseLoad,
		Kind:  KindModule,
		Cause: cause,
	}

	if !errors.Is(err.Unwrap(), cause) {
		t.Error("Unwrap did not return cause")
	}
	if !errors.Is(err, cause) {
		t.Error("errors.Is did not reach cause")
	}
}

func TestError_Is(t *testing.T) {
	err := &Error{
		Phase: PhaseInstantiate,
		Kind:  KindImportBinding,
		Name:  "env.add_one",
	}

	if !err.Is(&Error{Phase: PhaseInstantiate, Kind: KindImportBinding}) {
		t.Error("Is should match same phase and kind")
	}
	if err.Is(&Error{Phase: PhaseLoad, Kind: KindImportBinding}) {
		t.Error("Is should not match different phase")
	}
	if err.Is(&Error{Phase: PhaseInstantiate, Kind: KindModule}) {
		t.Error("Is should not match different kind")
	}
	if !errors.Is(err, ErrImportBinding) {
		t.Error("sentinel should match on kind alone")
	}
	if errors.Is(err, ErrModule) {
		t.Error("sentinel of another kind should not match")
	}

	wrapped := fmt.Errorf("outer: %w", err)
	if !errors.Is(wrapped, ErrImportBinding) {
		t.Error("sentinel should match through fmt wrapping")
	}
}

func TestBuilder(t *testing.T) {
	cause := errors.New("root")
	err := New(PhaseInvoke, KindInvocation).
		Name("main").
		Value(42).
		Cause(cause).
		Detail("expected %d results, got %d", 1, 2).
		Build()

	if err.Phase != PhaseInvoke {
		t.Errorf("Phase = %v, want %v", err.Phase, PhaseInvoke)
	}
	if err.Kind != KindInvocation {
		t.Errorf("Kind = %v, want %v", err.Kind, KindInvocation)
	}
	if err.Name != "main" {
		t.Errorf("Name = %v, want main", err.Name)
	}
	if err.Value != 42 {
		t.Errorf("Value = %v, want 42", err.Value)
	}
	if !errors.Is(err.Cause, cause) {
		t.Errorf("Cause = %v, want %v", err.Cause, cause)
	}
	if err.Detail != "expected 1 results, got 2" {
		t.Errorf("Detail = %q", err.Detail)
	}
}

func TestConvenienceConstructors(t *testing.T) {
	t.Run("Module", func(t *testing.T) {
		err := Module(PhaseLoad, "no heap base", nil)
		if !errors.Is(err, ErrModule) {
			t.Errorf("Kind = %v, want %v", err.Kind, KindModule)
		}
	})

	t.Run("ImportBinding", func(t *testing.T) {
		err := ImportBinding("env.missing", errors.New("x"))
		if err.Phase != PhaseInstantiate || err.Kind != KindImportBinding {
			t.Errorf("got %v/%v", err.Phase, err.Kind)
		}
		if err.Name != "env.missing" {
			t.Errorf("Name = %q", err.Name)
		}
	})

	t.Run("MemoryAccess", func(t *testing.T) {
		err := MemoryAccess(PhaseExtract, 65530, 16, 65536)
		if !errors.Is(err, ErrMemoryAccess) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Detail, "65546") {
			t.Errorf("Detail = %q, should contain range end", err.Detail)
		}
	})

	t.Run("Allocation", func(t *testing.T) {
		err := Allocation(PhaseInject, 1024, nil)
		if !errors.Is(err, ErrAllocation) {
			t.Errorf("Kind = %v", err.Kind)
		}
		if !strings.Contains(err.Detail, "1024") {
			t.Errorf("Detail = %q, should contain size", err.Detail)
		}
	})

	t.Run("UnsupportedValue", func(t *testing.T) {
		err := UnsupportedValue("externref")
		if !errors.Is(err, ErrUnsupportedValue) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("Unsupported", func(t *testing.T) {
		err := Unsupported(PhaseInvoke, "table invocation")
		if !errors.Is(err, ErrUnsupported) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})

	t.Run("InvalidInput", func(t *testing.T) {
		err := InvalidInput(PhaseConfig, "heap_pages must be positive")
		if !errors.Is(err, ErrInvalidInput) {
			t.Errorf("Kind = %v", err.Kind)
		}
	})
}

func TestHostCode(t *testing.T) {
	err := Invocation("main", "guest trapped", fmt.Errorf("wasm error: %w", HostCode(7)))

	var code HostCode
	if !errors.As(err, &code) {
		t.Fatal("errors.As should find HostCode through the cause chain")
	}
	if code != 7 {
		t.Errorf("code = %d, want 7", code)
	}
	if !strings.Contains(err.Error(), "code 7") {
		t.Errorf("message %q should mention the code", err.Error())
	}
}
