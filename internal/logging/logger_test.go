package logging

import "testing"

func TestInitialize_DefaultLevel(t *testing.T) {
	if err := Initialize(Options{}); err != nil {
		t.Fatalf("Initialize with defaults failed: %v", err)
	}
	UseNop()
}

func TestInitialize_BadLevel(t *testing.T) {
	if err := Initialize(Options{Level: "shouting"}); err == nil {
		t.Error("Expected error for unknown level")
	}
	UseNop()
}

func TestFor_ReturnsCachedLogger(t *testing.T) {
	UseNop()
	a := For(CategoryDispatch)
	b := For(CategoryDispatch)
	if a != b {
		t.Error("Expected the same logger instance for repeated category lookups")
	}
}

func TestFor_DisabledCategoryIsNop(t *testing.T) {
	if err := Initialize(Options{Disabled: map[string]bool{"stream": true}}); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	defer UseNop()

	// Must not panic; disabled categories log to a Nop core.
	For(CategoryStream).Debugw("delta", "blockId", "b1")
}
