package common

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"
)

const (
	// KB - Kilobytes
	KB uint64 = 1024

	// MB - Megabytes
	MB uint64 = 1024 * 1024
)

// Config defines the configuration settings for a ChronoKV storage instance.
type Config struct {
	// DbPath is the directory in which all the data files are stored.
	DbPath string `yaml:"dbPath"`

	// MemtableSize is the size in bytes after which a memtable is flushed to a table file.
	MemtableSize uint64 `yaml:"memtableSize"`

	// BlockSize is the target uncompressed size in bytes of a table data block.
	BlockSize int `yaml:"blockSize"`

	// TableCacheSize is the number of table readers kept open in the cache.
	TableCacheSize uint32 `yaml:"tableCacheSize"`

	// BloomFalsePositiveRate is the target false positive rate of table bloom filters.
	BloomFalsePositiveRate float64 `yaml:"bloomFalsePositiveRate"`

	// SyncWrites syncs the write ahead log on every write when set.
	SyncWrites bool `yaml:"syncWrites"`
}

// NewDefaultConfig returns a new config with the default settings.
func NewDefaultConfig() *Config {
	return &Config{
		DbPath:                 "/var/lib/chronokv",
		MemtableSize:           4 * MB,
		BlockSize:              int(4 * KB),
		TableCacheSize:         64,
		BloomFalsePositiveRate: 0.01,
	}
}

// Validate validates a Config and returns an error if it's invalid.
func (conf *Config) Validate() error {
	if conf.DbPath == "" {
		return fmt.Errorf("invalid db path provided in config")
	}
	if conf.MemtableSize == 0 {
		return fmt.Errorf("invalid memtable size provided in config")
	}
	if conf.BlockSize <= 0 {
		return fmt.Errorf("invalid block size provided in config")
	}
	if conf.BloomFalsePositiveRate <= 0 || conf.BloomFalsePositiveRate >= 1 {
		return fmt.Errorf("invalid bloom false positive rate provided in config")
	}
	return nil
}

// LoadFromFile loads the config from the file. It assumes that config already has the defaults.
// In the case of an error, it leaves the config untouched.
func (conf *Config) LoadFromFile(path string) {
	log.Info(fmt.Sprintf("common::config::LoadFromFile; loading config from file %s", path))
	data, err := os.ReadFile(path)
	if err != nil {
		log.Error(fmt.Sprintf("common::config::LoadFromFile; error reading config from file %s, error %s", path, err))
		return
	}
	fconf := Config{}
	err = yaml.Unmarshal(data, &fconf)
	if err != nil {
		log.Error(fmt.Sprintf("common::config::LoadFromFile; error unmarshalling config from file %s, error %s", path, err))
		return
	}

	log.WithFields(log.Fields{"config": fconf}).Debug("common::config::LoadFromFile; read contents from the file")

	// populate fields
	if fconf.DbPath != "" {
		conf.DbPath = fconf.DbPath
	}
	if fconf.MemtableSize != 0 {
		conf.MemtableSize = fconf.MemtableSize
	}
	if fconf.BlockSize != 0 {
		conf.BlockSize = fconf.BlockSize
	}
	if fconf.TableCacheSize != 0 {
		conf.TableCacheSize = fconf.TableCacheSize
	}
	if fconf.BloomFalsePositiveRate != 0 {
		conf.BloomFalsePositiveRate = fconf.BloomFalsePositiveRate
	}
	if fconf.SyncWrites {
		conf.SyncWrites = true
	}
}
