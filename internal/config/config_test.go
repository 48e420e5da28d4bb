package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arkilian/tablets/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Partitioning.MaxPartitions != 1000 {
		t.Errorf("expected max_partitions 1000, got %d", cfg.Partitioning.MaxPartitions)
	}

	cfg.Resolve()
	if cfg.Manifest.Path != filepath.Join(cfg.DataDir, "manifest.db") {
		t.Errorf("unexpected manifest path %s", cfg.Manifest.Path)
	}
	if cfg.Storage.Path != filepath.Join(cfg.DataDir, "storage") {
		t.Errorf("unexpected storage path %s", cfg.Storage.Path)
	}
}

func TestLoadFromFile(t *testing.T) {
	yamlPath := writeFile(t, "tablets.yaml", `
data_dir: /var/lib/tablets
manifest:
  busy_timeout: 2s
partitioning:
  max_partitions: 64
storage:
  type: s3
  s3:
    bucket: snapshots
    region: eu-west-1
    use_path_style: true
`)
	cfg, err := LoadFromFile(yamlPath)
	if err != nil {
		t.Fatalf("failed to load YAML: %v", err)
	}
	if cfg.DataDir != "/var/lib/tablets" || cfg.Partitioning.MaxPartitions != 64 {
		t.Errorf("unexpected config: %+v", cfg)
	}
	if cfg.Manifest.BusyTimeout != 2*time.Second {
		t.Errorf("expected busy timeout 2s, got %s", cfg.Manifest.BusyTimeout)
	}
	if cfg.Storage.S3.Bucket != "snapshots" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("unexpected s3 config: %+v", cfg.Storage.S3)
	}
	if cfg.Storage.Prefix != "snapshots" {
		t.Errorf("unset fields should keep defaults, prefix is %q", cfg.Storage.Prefix)
	}

	jsonPath := writeFile(t, "tablets.json", `{"data_dir": "/tmp/t", "partitioning": {"max_partitions": 0}}`)
	cfg, err = LoadFromFile(jsonPath)
	if err != nil {
		t.Fatalf("failed to load JSON: %v", err)
	}
	if cfg.DataDir != "/tmp/t" || cfg.Partitioning.MaxPartitions != 0 {
		t.Errorf("unexpected config: %+v", cfg)
	}

	if _, err := LoadFromFile(writeFile(t, "tablets.toml", "")); err == nil {
		t.Error("expected error for unsupported format")
	}
	if _, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("TABLETS_DATA_DIR", "/env/data")
	t.Setenv("TABLETS_MAX_PARTITIONS", "250")
	t.Setenv("TABLETS_MANIFEST_BUSY_TIMEOUT", "750ms")
	t.Setenv("TABLETS_STORAGE_TYPE", "s3")
	t.Setenv("TABLETS_S3_BUCKET", "b")
	t.Setenv("TABLETS_S3_USE_PATH_STYLE", "1")

	cfg := DefaultConfig()
	LoadFromEnv(cfg)

	if cfg.DataDir != "/env/data" {
		t.Errorf("expected data dir from env, got %s", cfg.DataDir)
	}
	if cfg.Partitioning.MaxPartitions != 250 {
		t.Errorf("expected 250, got %d", cfg.Partitioning.MaxPartitions)
	}
	if cfg.Manifest.BusyTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.Manifest.BusyTimeout)
	}
	if cfg.Storage.Type != "s3" || cfg.Storage.S3.Bucket != "b" || !cfg.Storage.S3.UsePathStyle {
		t.Errorf("unexpected storage config: %+v", cfg.Storage)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"empty data dir", func(c *Config) { c.DataDir = "" }},
		{"unknown storage", func(c *Config) { c.Storage.Type = "gcs" }},
		{"s3 without bucket", func(c *Config) { c.Storage.Type = "s3" }},
		{"negative max partitions", func(c *Config) { c.Partitioning.MaxPartitions = -1 }},
		{"negative busy timeout", func(c *Config) { c.Manifest.BusyTimeout = -time.Second }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestEnsureDirectories(t *testing.T) {
	cfg := DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Resolve()
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	for _, dir := range []string{cfg.DataDir, cfg.Storage.Path} {
		if info, err := os.Stat(dir); err != nil || !info.IsDir() {
			t.Errorf("expected directory %s", dir)
		}
	}
}

func TestLoadTableDefinition_YAML(t *testing.T) {
	path := writeFile(t, "metrics.yaml", `
name: metrics
columns:
  - {name: host, type: string}
  - {name: metric, type: string}
  - {name: time, type: timestamp}
  - {name: value, type: double, nullable: true, default: 0}
primary_key: [host, metric, time]
partitioning:
  hash:
    - columns: [host, metric]
      num_buckets: 8
  range:
    columns: [time]
splits:
  - {time: "2024-01-01T00:00:00Z"}
  - {time: 1717200000000000}
`)
	def, err := LoadTableDefinition(path)
	if err != nil {
		t.Fatalf("failed to load definition: %v", err)
	}
	table, ps, splits, err := def.Build()
	if err != nil {
		t.Fatalf("failed to build definition: %v", err)
	}

	if table.Name != "metrics" || table.KeyColumns != 3 || len(table.Columns) != 4 {
		t.Errorf("unexpected table: %+v", table)
	}
	if table.Columns[2].Type != types.Timestamp || table.Columns[3].ID != 3 {
		t.Errorf("unexpected columns: %+v", table.Columns)
	}
	if def, ok := table.Columns[3].Default.(float64); !ok || def != 0 {
		t.Errorf("default should be coerced to float64, got %#v", table.Columns[3].Default)
	}
	if len(ps.HashComponents) != 1 || ps.HashComponents[0].NumBuckets != 8 || ps.Range == nil {
		t.Errorf("unexpected partition schema: %+v", ps)
	}
	if len(splits) != 2 {
		t.Fatalf("expected 2 splits, got %d", len(splits))
	}
	if v, _ := splits[0].Get("time"); v != int64(1704067200000000) {
		t.Errorf("split time not coerced to micros: %#v", v)
	}
	if v, _ := splits[1].Get("time"); v != int64(1717200000000000) {
		t.Errorf("unexpected split value %#v", v)
	}
}

func TestLoadTableDefinition_JSON(t *testing.T) {
	path := writeFile(t, "people.json", `{
  "name": "people",
  "columns": [
    {"name": "last_name", "type": "STRING"},
    {"name": "first_name", "type": "STRING"},
    {"name": "age", "type": "INT32", "nullable": true}
  ],
  "primary_key": ["last_name", "first_name"],
  "partitioning": {"range": {}},
  "splits": [{"last_name": "m", "first_name": ""}]
}`)
	def, err := LoadTableDefinition(path)
	if err != nil {
		t.Fatalf("failed to load definition: %v", err)
	}
	table, ps, splits, err := def.Build()
	if err != nil {
		t.Fatalf("failed to build definition: %v", err)
	}
	if table.KeyColumns != 2 || ps.Range == nil || len(ps.Range.Columns) != 0 || len(splits) != 1 {
		t.Errorf("unexpected result: %+v %+v %d", table, ps, len(splits))
	}
}

func TestTableDefinition_BuildErrors(t *testing.T) {
	cols := []types.ColumnSchema{
		{Name: "a", Type: types.Int64},
		{Name: "b", Type: types.String},
	}
	tests := []struct {
		name string
		def  TableDefinition
	}{
		{"no primary key", TableDefinition{Name: "t", Columns: cols}},
		{"key not leading", TableDefinition{Name: "t", Columns: cols, PrimaryKey: []string{"b"}}},
		{"key too long", TableDefinition{Name: "t", Columns: cols, PrimaryKey: []string{"a", "b", "c"}}},
		{"bad split", TableDefinition{Name: "t", Columns: cols, PrimaryKey: []string{"a"},
			Splits: []map[string]interface{}{{"a": "not a number"}}}},
		{"unknown split column", TableDefinition{Name: "t", Columns: cols, PrimaryKey: []string{"a"},
			Splits: []map[string]interface{}{{"z": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, _, err := tt.def.Build(); err == nil {
				t.Error("expected error")
			}
		})
	}
}
