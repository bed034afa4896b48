package main

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"github.com/riverdb/riverdb/metadata"
)

// Config is the serve configuration file.
type Config struct {
	Listen     string        `yaml:"listen"`
	PoolSize   int64         `yaml:"pool_size"`
	ShardCount int           `yaml:"shard_count"`
	BatchSize  int           `yaml:"batch_size"`
	SessionTTL string        `yaml:"session_ttl"`
	Tables     []TableConfig `yaml:"tables"`
	Log        LogConfig     `yaml:"log"`
}

// TableConfig declares one table of the static cluster metadata.
type TableConfig struct {
	DB         string `yaml:"db"`
	Table      string `yaml:"table"`
	PrimaryKey string `yaml:"primary_key"`
}

// LogConfig selects the log sink.  An empty path logs to stderr; a path
// rotates with lumberjack.
type LogConfig struct {
	Path       string `yaml:"path"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
}

func loadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	conf := &Config{
		Listen:     "localhost:28015",
		PoolSize:   8,
		ShardCount: 16,
	}
	if err := yaml.Unmarshal(b, conf); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	if len(conf.Tables) == 0 {
		return nil, fmt.Errorf("config %s: no tables declared", path)
	}
	return conf, nil
}

func (c *Config) sessionTTL() (time.Duration, error) {
	if c.SessionTTL == "" {
		return 0, nil
	}
	return time.ParseDuration(c.SessionTTL)
}

func (c *Config) tableInfos() []metadata.TableInfo {
	infos := make([]metadata.TableInfo, 0, len(c.Tables))
	for _, t := range c.Tables {
		pk := t.PrimaryKey
		if pk == "" {
			pk = "id"
		}
		infos = append(infos, metadata.TableInfo{DB: t.DB, Name: t.Table, PrimaryKey: pk})
	}
	return infos
}

func (c *LogConfig) newLogger() (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if c.Level != "" {
		var err error
		level, err = zapcore.ParseLevel(c.Level)
		if err != nil {
			return nil, err
		}
	}
	if c.Path == "" {
		conf := zap.NewProductionConfig()
		conf.Level = zap.NewAtomicLevelAt(level)
		return conf.Build()
	}
	sink := &lumberjack.Logger{
		Filename:   c.Path,
		MaxSize:    c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
	}
	core := zapcore.NewCore(
		zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig()),
		zapcore.AddSync(sink),
		level,
	)
	return zap.New(core), nil
}
