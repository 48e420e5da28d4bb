package main

import (
	"context"
	"flag"
	"os"
	"path/filepath"
	"testing"

	"github.com/arkilian/tablets/internal/app"
	"github.com/arkilian/tablets/internal/config"
)

func TestLoadConfig_FlagOverridesEnv(t *testing.T) {
	t.Setenv("TABLETS_DATA_DIR", "/from/env")
	t.Setenv("TABLETS_MAX_PARTITIONS", "10")

	cfg, err := loadConfig("", "/from/flag")
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.DataDir != "/from/flag" {
		t.Errorf("flag should win, got %s", cfg.DataDir)
	}
	if cfg.Partitioning.MaxPartitions != 10 {
		t.Errorf("env should apply, got %d", cfg.Partitioning.MaxPartitions)
	}
}

func TestFindCommand(t *testing.T) {
	for _, c := range commands {
		if got, ok := findCommand(c.name); !ok || got.name != c.name {
			t.Errorf("command %s not found", c.name)
		}
	}
	if _, ok := findCommand("frobnicate"); ok {
		t.Error("unknown command should not be found")
	}
}

func TestTableArg(t *testing.T) {
	fs := flag.NewFlagSet("x", flag.ContinueOnError)
	all := fs.Bool("all", false, "")
	name, err := tableArg(fs, []string{"people", "-all"})
	if err != nil || name != "people" || !*all {
		t.Errorf("got %q, %v, all=%v", name, err, *all)
	}
	if _, err := tableArg(flag.NewFlagSet("y", flag.ContinueOnError), nil); err == nil {
		t.Error("expected error for missing table")
	}
}

func TestCommands_EndToEnd(t *testing.T) {
	dir := t.TempDir()
	defPath := filepath.Join(dir, "people.yaml")
	def := `
name: people
columns:
  - {name: last_name, type: string}
  - {name: first_name, type: string}
  - {name: age, type: int32, nullable: true}
primary_key: [last_name, first_name]
partitioning:
  range: {}
splits:
  - {last_name: b, first_name: ""}
  - {last_name: c, first_name: ""}
`
	if err := os.WriteFile(defPath, []byte(def), 0644); err != nil {
		t.Fatalf("failed to write definition: %v", err)
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = filepath.Join(dir, "data")
	ctx := context.Background()
	a, err := app.New(ctx, cfg)
	if err != nil {
		t.Fatalf("failed to create app: %v", err)
	}
	defer a.Close()

	steps := []struct {
		name string
		run  func(context.Context, *app.App, []string) error
		args []string
	}{
		{"create", runCreate, []string{"-def", defPath}},
		{"describe", runDescribe, []string{"people"}},
		{"locate", runLocate, []string{"people", "last_name=bob", "first_name=alice"}},
		{"alter", runAlter, []string{"people", "-rename-column", "age=years", "-add-column", "email:string"}},
		{"history", runHistory, []string{"people"}},
		{"export", runExport, []string{"people"}},
		{"reconcile", runReconcile, nil},
		{"list", runList, []string{"-all"}},
		{"drop", runDrop, []string{"people"}},
		{"import", runImport, []string{"snapshots/people/v000002.json.sz"}},
	}
	for _, s := range steps {
		if err := s.run(ctx, a, s.args); err != nil {
			t.Fatalf("%s failed: %v", s.name, err)
		}
	}

	tbl, err := a.Catalog().OpenTable(ctx, "people")
	if err != nil {
		t.Fatalf("restored table should open: %v", err)
	}
	if tbl.Schema().Version != 2 {
		t.Errorf("expected restored version 2, got %d", tbl.Schema().Version)
	}

	if err := runAlter(ctx, a, []string{"people", "-drop-column", "last_name"}); err == nil {
		t.Error("dropping a key column should fail")
	}
	if err := runAlter(ctx, a, []string{"people"}); err == nil {
		t.Error("alter without alterations should fail")
	}
}
