// Package config loads datatree settings from an optional YAML file and
// DATATREE_* environment variables.
package config

import (
	"strings"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"datatree/internal/blob"
)

// Source drivers.
const (
	DriverStatic = "static"
	DriverBlob   = "blob"
	DriverSQL    = "sql"
)

// EnvPrefix prefixes every environment override. Nested keys join with
// underscores: source.sql.dsn is DATATREE_SOURCE_SQL_DSN.
const EnvPrefix = "DATATREE"

// Config is the full set of settings.
type Config struct {
	Source  Source  `mapstructure:"source"`
	Dialect string  `mapstructure:"dialect"`
	Log     Log     `mapstructure:"log"`
	Metrics Metrics `mapstructure:"metrics"`
	Export  Export  `mapstructure:"export"`
}

// Source selects where the tree comes from.
type Source struct {
	Driver string `mapstructure:"driver"`
	// Catalog is the catalog document of the static driver.
	Catalog string `mapstructure:"catalog"`
	// Datatypes is an optional YAML document of extra datatypes.
	Datatypes string `mapstructure:"datatypes"`
	Blob      Blob   `mapstructure:"blob"`
	SQL       SQL    `mapstructure:"sql"`
}

// Blob configures the blob tree driver.
type Blob struct {
	Driver string `mapstructure:"driver"`
	Root   string `mapstructure:"root"`
	// Prefix is the key prefix the tree starts at.
	Prefix string `mapstructure:"prefix"`
	S3     S3     `mapstructure:"s3"`
}

// S3 configures the s3 blob driver.
type S3 struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	Endpoint        string `mapstructure:"endpoint"`
	Prefix          string `mapstructure:"prefix"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	PathStyle       bool   `mapstructure:"path_style"`
}

// SQL configures the SQL catalog driver.
type SQL struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

// Log configures logging.
type Log struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
	Color  bool   `mapstructure:"color"`
}

// Metrics configures metric export.
type Metrics struct {
	// Addr serves Prometheus metrics on /metrics when set.
	Addr string `mapstructure:"addr"`
}

// Export configures where exported result sets are stored.
type Export struct {
	Blob    Blob     `mapstructure:"blob"`
	Formats []string `mapstructure:"formats"`
}

var defaults = map[string]any{
	"source.driver":                    DriverStatic,
	"source.catalog":                   "catalog.yaml",
	"source.datatypes":                 "",
	"source.blob.driver":               string(blob.DriverFilesystem),
	"source.blob.root":                 "./blobdata",
	"source.blob.prefix":               "",
	"source.blob.s3.bucket":            "",
	"source.blob.s3.region":            "us-east-1",
	"source.blob.s3.endpoint":          "",
	"source.blob.s3.prefix":            "",
	"source.blob.s3.access_key_id":     "",
	"source.blob.s3.secret_access_key": "",
	"source.blob.s3.path_style":        false,
	"source.sql.driver":                "sqlite",
	"source.sql.dsn":                   "datatree.db",
	"dialect":                          "",
	"log.level":                        "info",
	"log.format":                       "text",
	"log.file":                         "",
	"log.color":                        true,
	"metrics.addr":                     "",
	"export.blob.driver":               string(blob.DriverFilesystem),
	"export.blob.root":                 "./exports",
	"export.blob.prefix":               "",
	"export.blob.s3.region":            "us-east-1",
	"export.formats":                   []string{"json", "csv"},
}

// Load reads path (skipped when empty) and the environment into a Config
// and validates it.
func Load(v *viper.Viper, path string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrapf(err, "read config %s", path)
		}
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "decode config")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var result *multierror.Error
	switch c.Source.Driver {
	case DriverStatic:
		if c.Source.Catalog == "" {
			result = multierror.Append(result, errors.New("source.catalog required for the static driver"))
		}
	case DriverBlob:
		switch blob.Driver(c.Source.Blob.Driver) {
		case blob.DriverFilesystem, blob.DriverMemory:
		case blob.DriverS3:
			if c.Source.Blob.S3.Bucket == "" {
				result = multierror.Append(result, errors.New("source.blob.s3.bucket required for the s3 blob driver"))
			}
		default:
			result = multierror.Append(result, errors.Errorf("unknown blob driver %q", c.Source.Blob.Driver))
		}
	case DriverSQL:
		switch c.Source.SQL.Driver {
		case "sqlite", "postgres":
		default:
			result = multierror.Append(result, errors.Errorf("unknown sql driver %q", c.Source.SQL.Driver))
		}
		if c.Source.SQL.DSN == "" {
			result = multierror.Append(result, errors.New("source.sql.dsn required for the sql driver"))
		}
	default:
		result = multierror.Append(result, errors.Errorf("unknown source driver %q", c.Source.Driver))
	}
	switch blob.Driver(c.Export.Blob.Driver) {
	case "", blob.DriverFilesystem, blob.DriverMemory:
	case blob.DriverS3:
		if c.Export.Blob.S3.Bucket == "" {
			result = multierror.Append(result, errors.New("export.blob.s3.bucket required for the s3 blob driver"))
		}
	default:
		result = multierror.Append(result, errors.Errorf("unknown export blob driver %q", c.Export.Blob.Driver))
	}
	for _, f := range c.Export.Formats {
		switch strings.ToLower(f) {
		case "json", "csv":
		default:
			result = multierror.Append(result, errors.Errorf("unknown export format %q", f))
		}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		result = multierror.Append(result, errors.Errorf("unknown log format %q", c.Log.Format))
	}
	return result.ErrorOrNil()
}

// BlobConfig converts the blob settings for blob.Open.
func (b Blob) BlobConfig() blob.Config {
	return blob.Config{
		Driver: blob.Driver(b.Driver),
		Root:   b.Root,
		S3: blob.S3Config{
			Bucket:          b.S3.Bucket,
			Region:          b.S3.Region,
			Endpoint:        b.S3.Endpoint,
			Prefix:          b.S3.Prefix,
			AccessKeyID:     b.S3.AccessKeyID,
			SecretAccessKey: b.S3.SecretAccessKey,
			PathStyle:       b.S3.PathStyle,
		},
	}
}
