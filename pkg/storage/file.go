package storage

import (
	"io"
	"os"
)

// File is a file abstraction.
//
// It can be an *os.File or an in-memory file.
type File interface {
	io.Reader
	io.ReaderAt
	io.Writer
	io.Closer

	// Stat returns the FileInfo structure describing the file.
	Stat() (os.FileInfo, error)

	// Sync commits the current contents of the file to stable storage.
	Sync() error
}

// FileSystem is the file system abstraction.
//
// Contains functions which can be used to interact with the file system.
// Mainly a 1:1 mapping over the File interface: https://golang.org/pkg/os/#File
type FileSystem interface {
	// Create creates or truncates the file.
	Create(name string) (File, error)

	// Open opens the file for reading.
	// returns error if the file is not found.
	Open(name string) (File, error)

	// Remove removes the file.
	// returns error if the file isn't found.
	Remove(name string) error

	// Rename renames the file from oldname to newname.
	// returns error if the file with oldname is not found.
	Rename(oldname, newname string) error

	// MkdirAll creates a dir with all the parents.
	//
	// returns nil if the operation was a success or the dir already exists.
	MkdirAll(dir string, perm os.FileMode) error

	// List returns the names of the entries in the directory.
	List(dir string) ([]string, error)

	// Lock creates a lock file in the directory.
	//
	// this is used to obtain exclusive access to the directory.
	Lock(name string) error
}

// DefaultFileSystem is a FileSystem implementation backed by the operating system.
var DefaultFileSystem FileSystem = defaultFileSystem{}

type defaultFileSystem struct{}

// Create creates or truncates the file.
func (dfs defaultFileSystem) Create(name string) (File, error) {
	return os.Create(name)
}

// Open opens the file for reading.
// returns error if the file is not found.
func (dfs defaultFileSystem) Open(name string) (File, error) {
	return os.Open(name)
}

// Remove removes the file.
// returns error if the file isn't found.
func (dfs defaultFileSystem) Remove(name string) error {
	return os.Remove(name)
}

// Rename renames the file from oldname to newname.
// returns error if the file with oldname is not found.
func (dfs defaultFileSystem) Rename(oldname, newname string) error {
	return os.Rename(oldname, newname)
}

// MkdirAll creates a dir with all the parents.
//
// returns nil if the operation was a success or the dir already exists.
func (dfs defaultFileSystem) MkdirAll(dir string, perm os.FileMode) error {
	return os.MkdirAll(dir, perm)
}

// List returns the names of the entries in the directory.
func (dfs defaultFileSystem) List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

// Lock creates a lock file in the directory.
//
// this is used to obtain exclusive access to the directory.
func (dfs defaultFileSystem) Lock(name string) error {
	f, err := dfs.Create(name)
	if err != nil {
		return err
	}
	return f.Close()
}
