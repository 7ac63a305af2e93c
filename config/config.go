// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

// Package config holds the bucketinit CLI's runtime configuration surface:
// everything except the Desired Bucket Configuration itself, which is its
// own declarative YAML document loaded by buckets.go.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strconv"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// BucketInitVersion is a static build identifier; callers building from a
// release pipeline may overwrite it with -ldflags.
var BucketInitVersion = "dev"

func init() {
	if Config == nil {
		Config = initDefaultConfig()
	}
}

// Config is the process-wide resolved configuration, populated by Load.
var Config *RunConfig

// RunConfig is the bucketinit CLI's flag/config surface. Every field's
// mapstructure tag is also its flag name; default and description tags
// drive flag registration via reflection, exactly as the teacher's own
// config struct does.
type RunConfig struct {
	BucketsConfigPath string `mapstructure:"buckets-config" default:"buckets.yaml" description:"path to the desired bucket configuration YAML file"`
	MigrationsDir     string `mapstructure:"migrations-dir" default:"" description:"path to the data migrations directory; empty skips the migration phase"`
	LogLevel          string `mapstructure:"log-level" default:"info" description:"log level: debug, info, warn, error"`
	LogTags           string `mapstructure:"log-tags" default:"" description:"comma-separated verbose logging tags, or 'all'"`

	MaxBucketsSetupAttempts   int `mapstructure:"max-buckets-setup-attempts" default:"0" description:"max attempts for schema setup; 0 is unbounded"`
	MaxBucketsReindexAttempts int `mapstructure:"max-buckets-reindex-attempts" default:"0" description:"max attempts for reindexing; 0 is unbounded"`
	MaxDataMigrationsAttempts int `mapstructure:"max-data-migrations-attempts" default:"0" description:"max attempts for data migrations; 0 is unbounded"`

	RefStorePath string `mapstructure:"ref-store" default:"" description:"path to a bbolt reference store; when set, used instead of a live remote"`

	MetricsListenAddr   string `mapstructure:"metrics-listen-addr" default:":9090" description:"listen address for the Prometheus /metrics endpoint"`
	ReadinessListenAddr string `mapstructure:"readiness-listen-addr" default:":9091" description:"listen address for the gRPC health/readiness service"`
}

// Load merges flags, a discovered bucketinit.yaml config file, and each
// field's default tag (in that precedence order, an explicit flag always
// winning) into Config.
func Load(flags *pflag.FlagSet) {
	configureMetadataDir()
	viper.SetConfigType("yaml")
	viper.AddConfigPath(MetadataDir)
	viper.AddConfigPath(".")
	viper.SetConfigName("bucketinit")
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			panic(err)
		}
	}

	flags.VisitAll(func(flag *pflag.Flag) {
		if flag.Name == "help" {
			return
		}
		if flag.Changed || !viper.IsSet(flag.Name) {
			viper.Set(flag.Name, flag.Value.String())
		}
	})

	if err := viper.Unmarshal(&Config); err != nil {
		panic(err)
	}
}

// InitConfig writes the currently resolved Config out as bucketinit.yaml
// under MetadataDir, creating it if absent, overwriting it only when
// overwrite is set.
func InitConfig(flags *pflag.FlagSet, overwrite bool) {
	Load(flags)
	configPath := filepath.Join(MetadataDir, "bucketinit.yaml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := viper.WriteConfigAs(configPath); err != nil {
			slog.Error("could not write the config file", slog.String("path", configPath), slog.String("error", err.Error()))
			os.Exit(1)
		}
		slog.Info("config created", slog.String("path", configPath))
		return
	}
	if !overwrite {
		slog.Info("config already exists, skipping", slog.String("path", configPath))
		slog.Info("run with --overwrite to overwrite the existing config")
		return
	}
	if err := viper.WriteConfigAs(configPath); err != nil {
		slog.Error("could not write the config file", slog.String("path", configPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	slog.Info("config overwritten", slog.String("path", configPath))
}

// configureMetadataDir anchors MetadataDir to an absolute path, falling back
// to the current directory if it cannot be created.
func configureMetadataDir() {
	if !filepath.IsAbs(MetadataDir) {
		cwd, _ := os.Getwd()
		MetadataDir = filepath.Join(cwd, MetadataDir)
	}
	if err := os.MkdirAll(MetadataDir, 0o700); err != nil {
		fmt.Printf("could not create metadata directory at %s: %s\n", MetadataDir, err)
		fmt.Println("using current directory as metadata directory")
		MetadataDir = "."
	}
}

// RegisterFlags registers one flag per RunConfig field on flags, using each
// field's mapstructure/default/description tags.
func RegisterFlags(flags *pflag.FlagSet) {
	t := reflect.TypeOf(RunConfig{})
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		name := field.Tag.Get("mapstructure")
		desc := field.Tag.Get("description")
		def := field.Tag.Get("default")

		switch field.Type.Kind() {
		case reflect.String:
			flags.String(name, def, desc)
		case reflect.Int:
			v, _ := strconv.Atoi(def)
			flags.Int(name, v, desc)
		case reflect.Bool:
			v, _ := strconv.ParseBool(def)
			flags.Bool(name, v, desc)
		}
	}
}

func initDefaultConfig() *RunConfig {
	defaultConfig := &RunConfig{}
	t := reflect.TypeOf(*defaultConfig)
	v := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		value := v.Field(i)
		tag := field.Tag.Get("default")
		if tag == "" {
			continue
		}
		switch value.Kind() {
		case reflect.String:
			value.SetString(tag)
		case reflect.Int:
			if n, err := strconv.Atoi(tag); err == nil {
				value.SetInt(int64(n))
			}
		case reflect.Bool:
			if b, err := strconv.ParseBool(tag); err == nil {
				value.SetBool(b)
			}
		}
	}
	return defaultConfig
}

// ForceInit overwrites Config with cfg, filling any zero-valued field from
// the default-tag config first.
func ForceInit(cfg *RunConfig) {
	defaultConfig := initDefaultConfig()

	t := reflect.TypeOf(*cfg)
	v := reflect.ValueOf(cfg).Elem()
	dv := reflect.ValueOf(defaultConfig).Elem()

	for i := 0; i < t.NumField(); i++ {
		value := v.Field(i)
		defaultValue := dv.Field(i)
		if value.IsZero() {
			value.Set(defaultValue)
		}
	}

	Config = cfg
}
