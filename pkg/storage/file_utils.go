package storage

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

type fileType int

const (
	lockFileType fileType = iota
	walFileType
	tableFileType
)

const (
	lockFileName = "LOCK"
)

// getDbFileName returns the name of the file stored on the disk for a particular type and number.
func getDbFileName(dirname string, fileType fileType, fileNum uint64) string {
	switch fileType {
	case lockFileType:
		return filepath.Join(dirname, lockFileName)
	case walFileType:
		return filepath.Join(dirname, fmt.Sprintf("%06d.log", fileNum))
	case tableFileType:
		return filepath.Join(dirname, fmt.Sprintf("%06d.sst", fileNum))
	}

	panic("invalid file type")
}

// parseTableFileName extracts the file number from a table file name.
// returns false if the name is not a table file name.
func parseTableFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, ".sst") {
		return 0, false
	}

	num, err := strconv.ParseUint(strings.TrimSuffix(name, ".sst"), 10, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}

// parseWalFileName extracts the file number from a write ahead log file name.
// returns false if the name is not a log file name.
func parseWalFileName(name string) (uint64, bool) {
	if !strings.HasSuffix(name, ".log") {
		return 0, false
	}

	num, err := strconv.ParseUint(strings.TrimSuffix(name, ".log"), 10, 64)
	if err != nil {
		return 0, false
	}
	return num, true
}
