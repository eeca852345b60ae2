package handler

import (
	"context"
	"testing"

	"github.com/forgeml/orchestrator/pkg/types"
)

func TestRegistry_RegisterAndResolve(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterFunc("train", func(ctx context.Context, spec *types.JobSpec, hctx *Context) (map[string]interface{}, error) {
		return map[string]interface{}{"ok": true}, nil
	}, "v2")
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	h, err := r.Resolve("train")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	out, err := h.Handle(context.Background(), &types.JobSpec{ID: "a", Type: "train"}, NewContext("x", 1, nil, nil, nil))
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if out["ok"] != true {
		t.Errorf("unexpected output: %v", out)
	}
	if v := r.Version("train"); v != "v2" {
		t.Errorf("version = %q, want v2", v)
	}
}

func TestRegistry_UnknownType(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("missing"); err == nil {
		t.Fatal("expected error for unregistered type")
	}
	if v := r.Version("missing"); v != "" {
		t.Errorf("version for unknown type = %q", v)
	}
}

func TestRegistry_DefaultVersion(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("etl", Func(func(ctx context.Context, spec *types.JobSpec, hctx *Context) (map[string]interface{}, error) {
		return nil, nil
	}), ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if v := r.Version("etl"); v != "v1" {
		t.Errorf("default version = %q, want v1", v)
	}
}

func TestContext_DependencyOutputs(t *testing.T) {
	outputs := map[string]map[string]interface{}{
		"prep": {"rows": 100},
	}
	var logged []string
	hctx := NewContext("exec-1", 1, outputs, func(line string) {
		logged = append(logged, line)
	}, nil)

	if hctx.Output("prep")["rows"] != 100 {
		t.Errorf("dependency output not visible")
	}
	if hctx.Output("absent") != nil {
		t.Errorf("absent dependency should yield nil")
	}
	hctx.Log("starting")
	if len(logged) != 1 || logged[0] != "starting" {
		t.Errorf("log sink not invoked: %v", logged)
	}
}
