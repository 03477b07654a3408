package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"

	"datatree/internal/blob"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New(), "")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Driver != DriverStatic || cfg.Source.Catalog != "catalog.yaml" || cfg.Log.Format != "text" || !cfg.Log.Color {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.Export.Blob.Root != "./exports" || strings.Join(cfg.Export.Formats, ",") != "json,csv" {
		t.Fatalf("unexpected export defaults %+v", cfg.Export)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "datatree.yaml")
	doc := `source:
  driver: blob
  blob:
    driver: s3
    prefix: stats
    s3:
      bucket: catalogs
      path_style: true
dialect: scb
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("DATATREE_SOURCE_BLOB_S3_REGION", "eu-north-1")
	t.Setenv("DATATREE_METRICS_ADDR", ":9100")
	cfg, err := Load(viper.New(), path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Source.Driver != DriverBlob || cfg.Dialect != "scb" || cfg.Log.Level != "debug" {
		t.Fatalf("file values lost: %+v", cfg)
	}
	if cfg.Source.Blob.S3.Region != "eu-north-1" || cfg.Metrics.Addr != ":9100" {
		t.Fatalf("env overrides lost: %+v", cfg)
	}
	bc := cfg.Source.Blob.BlobConfig()
	if bc.Driver != blob.DriverS3 || bc.S3.Bucket != "catalogs" || !bc.S3.PathStyle {
		t.Fatalf("unexpected blob config %+v", bc)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(nil, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatalf("expected read error")
	}
}

func TestValidateCollectsAllProblems(t *testing.T) {
	cfg := Config{
		Source: Source{Driver: DriverSQL, SQL: SQL{Driver: "oracle"}},
		Log:    Log{Format: "xml"},
	}
	err := cfg.Validate()
	merr, ok := err.(*multierror.Error)
	if !ok {
		t.Fatalf("expected multierror, got %T %v", err, err)
	}
	if len(merr.Errors) != 3 {
		t.Fatalf("expected three problems, got %v", merr.Errors)
	}
	if !strings.Contains(err.Error(), "oracle") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	cases := []Config{
		{Source: Source{Driver: "ftp"}, Log: Log{Format: "text"}},
		{Source: Source{Driver: DriverBlob, Blob: Blob{Driver: "s3"}}, Log: Log{Format: "text"}},
		{Source: Source{Driver: DriverBlob, Blob: Blob{Driver: "tape"}}, Log: Log{Format: "text"}},
		{Source: Source{Driver: DriverStatic}, Log: Log{Format: "json"}},
		{Source: Source{Driver: DriverStatic, Catalog: "c.yaml"}, Log: Log{Format: "json"}, Export: Export{Blob: Blob{Driver: "s3"}}},
		{Source: Source{Driver: DriverStatic, Catalog: "c.yaml"}, Log: Log{Format: "json"}, Export: Export{Formats: []string{"xlsx"}}},
	}
	for i, c := range cases {
		if err := c.Validate(); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}
	ok2 := Config{Source: Source{Driver: DriverBlob, Blob: Blob{Driver: "memory"}}, Log: Log{Format: "JSON"}}
	if err := ok2.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
}
