package fs

import (
	"fmt"
	"strings"

	"github.com/mit-pdos/imgfs/common"
)

// SplitPath breaks a slash-separated path into its names, dropping empty
// components.
func SplitPath(path string) []string {
	var names []string
	for _, n := range strings.Split(path, "/") {
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// ResolvePath walks path from the directory root.
func (fs *Fs) ResolvePath(root common.Inum, path string) (common.Inum, error) {
	cur := root
	for _, name := range SplitPath(path) {
		ip, err := fs.getInode(cur)
		if err != nil {
			return 0, err
		}
		if ip.Kind != common.KindDir {
			return 0, fmt.Errorf("%s: %w", path, common.ErrNotADirectory)
		}
		next, err := fs.Lookup(cur, name)
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
		cur = next
	}
	return cur, nil
}

// LookupPath resolves an absolute path.
func (fs *Fs) LookupPath(path string) (common.Inum, error) {
	return fs.ResolvePath(common.ROOTINUM, path)
}

// parentOf resolves all but the last name of path.
func (fs *Fs) parentOf(path string) (common.Inum, string, error) {
	names := SplitPath(path)
	if len(names) == 0 {
		return 0, "", fmt.Errorf("%q: %w", path, common.ErrInvalidName)
	}
	parent, err := fs.ResolvePath(common.ROOTINUM, strings.Join(names[:len(names)-1], "/"))
	if err != nil {
		return 0, "", err
	}
	return parent, names[len(names)-1], nil
}

func (fs *Fs) CreatePath(path string) (common.Inum, error) {
	parent, name, err := fs.parentOf(path)
	if err != nil {
		return 0, err
	}
	return fs.CreateFile(parent, name)
}

func (fs *Fs) MkdirPath(path string) (common.Inum, error) {
	parent, name, err := fs.parentOf(path)
	if err != nil {
		return 0, err
	}
	return fs.Mkdir(parent, name)
}

func (fs *Fs) DeletePath(path string) error {
	parent, name, err := fs.parentOf(path)
	if err != nil {
		return err
	}
	return fs.DeleteFile(parent, name)
}

func (fs *Fs) RmdirPath(path string) error {
	parent, name, err := fs.parentOf(path)
	if err != nil {
		return err
	}
	return fs.Rmdir(parent, name)
}

func (fs *Fs) ListPath(path string) ([]Dirent, error) {
	inum, err := fs.LookupPath(path)
	if err != nil {
		return nil, err
	}
	return fs.List(inum)
}

// ReadPath reads from the regular file at path.
func (fs *Fs) ReadPath(path string, off uint64, n uint64) ([]byte, error) {
	inum, err := fs.fileAt(path)
	if err != nil {
		return nil, err
	}
	return fs.Read(inum, off, n)
}

func (fs *Fs) WritePath(path string, off uint64, data []byte) (uint64, error) {
	inum, err := fs.fileAt(path)
	if err != nil {
		return 0, err
	}
	return fs.Write(inum, off, data)
}

func (fs *Fs) TruncatePath(path string, size uint64) error {
	inum, err := fs.fileAt(path)
	if err != nil {
		return err
	}
	return fs.Truncate(inum, size)
}

func (fs *Fs) StatPath(path string) (*Stat, error) {
	inum, err := fs.LookupPath(path)
	if err != nil {
		return nil, err
	}
	return fs.Stat(inum)
}

func (fs *Fs) fileAt(path string) (common.Inum, error) {
	inum, err := fs.LookupPath(path)
	if err != nil {
		return 0, err
	}
	ip, err := fs.getInode(inum)
	if err != nil {
		return 0, err
	}
	if ip.Kind == common.KindDir {
		return 0, fmt.Errorf("%s: %w", path, common.ErrIsDirectory)
	}
	return inum, nil
}
