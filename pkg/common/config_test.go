package common

import (
	"os"
	"path"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefaultConfigIsValid(t *testing.T) {
	conf := NewDefaultConfig()
	assert.Nil(t, conf.Validate(), "The default config must be valid")
	assert.Equal(t, 4*MB, conf.MemtableSize, "Unexpected default memtable size")
	assert.Equal(t, int(4*KB), conf.BlockSize, "Unexpected default block size")
}

func TestConfigValidation(t *testing.T) {
	conf := NewDefaultConfig()
	conf.DbPath = ""
	assert.NotNil(t, conf.Validate(), "Expected a validation error for an empty db path")

	conf = NewDefaultConfig()
	conf.MemtableSize = 0
	assert.NotNil(t, conf.Validate(), "Expected a validation error for a zero memtable size")

	conf = NewDefaultConfig()
	conf.BloomFalsePositiveRate = 1.5
	assert.NotNil(t, conf.Validate(), "Expected a validation error for an out of range bloom rate")
}

func TestConfigLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	file := path.Join(dir, "config.yaml")

	contents := []byte("dbPath: /tmp/chronokv-config-test\nmemtableSize: 1048576\nsyncWrites: true\n")
	assert.Nil(t, os.WriteFile(file, contents, 0644), "Unexpected error in writing the config file")

	conf := NewDefaultConfig()
	conf.LoadFromFile(file)

	// fields present in the file override the defaults
	assert.Equal(t, "/tmp/chronokv-config-test", conf.DbPath, "dbPath from the file was not applied")
	assert.Equal(t, uint64(1048576), conf.MemtableSize, "memtableSize from the file was not applied")
	assert.True(t, conf.SyncWrites, "syncWrites from the file was not applied")

	// fields absent from the file keep the defaults
	assert.Equal(t, uint32(64), conf.TableCacheSize, "tableCacheSize must keep its default")

	// a missing file leaves the config untouched
	conf2 := NewDefaultConfig()
	conf2.LoadFromFile(path.Join(dir, "missing.yaml"))
	assert.Equal(t, NewDefaultConfig(), conf2, "A missing file must leave the config untouched")
}
