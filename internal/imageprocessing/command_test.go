package imageprocessing

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
)

func TestCommandRegistry_Register(t *testing.T) {
	registry := NewCommandRegistry()
	factory := func(map[string]any) (Command, error) { return &mockCommand{name: "A"}, nil }

	if err := registry.Register("A", factory); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if err := registry.Register("A", factory); err == nil {
		t.Errorf("expected duplicate registration to fail")
	}
	if err := registry.Register("", factory); err == nil {
		t.Errorf("expected empty name to fail")
	}
	if err := registry.Register("B", nil); err == nil {
		t.Errorf("expected nil factory to fail")
	}
	if !registry.IsRegistered("A") || registry.IsRegistered("B") {
		t.Errorf("unexpected registration state: %v", registry.Names())
	}
}

func TestCommandRegistry_CreateUnknown(t *testing.T) {
	_, err := NewCommandRegistry().Create("Nope", nil)
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Fatalf("expected unknown command error, got %v", err)
	}
}

func TestDefaultRegistry_HasBuiltins(t *testing.T) {
	names := DefaultRegistry.Names()
	for _, want := range []string{PngConverterName, PixelScaleName, DownscaleName, RegionCropName, GrayscaleName} {
		if !slices.Contains(names, want) {
			t.Errorf("expected %s to be registered, got %v", want, names)
		}
	}
}

func TestParams(t *testing.T) {
	params := map[string]any{
		"int":       5,
		"float":     2.5,
		"intString": "7",
		"bool":      true,
		"boolStr":   "FALSE",
		"name":      "x",
	}
	if got := GetIntParam(params, "int", 0); got != 5 {
		t.Errorf("GetIntParam(int) = %d", got)
	}
	if got := GetIntParam(params, "float", 0); got != 2 {
		t.Errorf("GetIntParam(float) = %d", got)
	}
	if got := GetIntParam(params, "intString", 0); got != 7 {
		t.Errorf("GetIntParam(intString) = %d", got)
	}
	if got := GetIntParam(params, "missing", 3); got != 3 {
		t.Errorf("GetIntParam(missing) = %d", got)
	}
	if got := GetFloatParam(params, "int", 0); got != 5 {
		t.Errorf("GetFloatParam(int) = %v", got)
	}
	if !GetBoolParam(params, "bool", false) {
		t.Errorf("GetBoolParam(bool) should be true")
	}
	if GetBoolParam(params, "boolStr", true) {
		t.Errorf("GetBoolParam(boolStr) should be false")
	}
	if got := GetStringParam(params, "name", ""); got != "x" {
		t.Errorf("GetStringParam(name) = %q", got)
	}
	if err := ValidateRequiredParams(params, []string{"int", "absent"}); err == nil {
		t.Errorf("expected missing parameter error")
	}
}

func TestPipeline_ExecutesInOrder(t *testing.T) {
	var order []string
	step := func(name string) Command {
		return &mockCommand{name: name, executeFunc: func(data []byte) ([]byte, error) {
			order = append(order, name)
			return append(data, name...), nil
		}}
	}

	out, err := NewPipeline(step("a"), step("b")).Execute(context.Background(), []byte(">"))
	if err != nil {
		t.Fatalf("Execute error: %v", err)
	}
	if string(out) != ">ab" {
		t.Errorf("unexpected output %q", string(out))
	}
	if !slices.Equal(order, []string{"a", "b"}) {
		t.Errorf("unexpected order %v", order)
	}
}

func TestPipeline_StopsOnError(t *testing.T) {
	boom := errors.New("boom")
	called := false
	pipeline := NewPipeline(
		&mockCommand{name: "fail", executeFunc: func([]byte) ([]byte, error) { return nil, boom }},
		&mockCommand{name: "after", executeFunc: func(d []byte) ([]byte, error) { called = true; return d, nil }},
	)
	_, err := pipeline.Execute(context.Background(), []byte("x"))
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom error, got %v", err)
	}
	if called {
		t.Errorf("command after failure must not run")
	}
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewPipeline(&mockCommand{name: "a"}).Execute(ctx, []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestExecuteCommands_EmptyAndUnknown(t *testing.T) {
	out, err := ExecuteCommands(context.Background(), []byte("data"), nil)
	if err != nil || string(out) != "data" {
		t.Fatalf("expected passthrough, got %q, %v", out, err)
	}
	_, err = ExecuteCommands(context.Background(), []byte("data"), []CommandConfig{{Name: "UnknownCommand"}})
	if err == nil {
		t.Fatalf("expected error for unknown command")
	}
}
