package fs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/util"
)

func isNotFound(err error) bool {
	return errors.Is(err, common.ErrNotFound)
}

// create makes a new inode of kind and links it into parent as name. On
// failure nothing stays allocated.
func (fs *Fs) create(parent common.Inum, name string, kind common.Kind) (common.Inum, error) {
	if err := checkName(name); err != nil {
		return 0, err
	}
	if _, err := fs.getDir(parent); err != nil {
		return 0, err
	}
	if _, _, err := fs.find(parent, name); err == nil {
		return 0, fmt.Errorf("%q: %w", name, common.ErrDuplicateName)
	} else if !isNotFound(err) {
		return 0, err
	}

	inum, err := fs.allocInode(kind)
	if err != nil {
		return 0, fmt.Errorf("create %q: %w", name, err)
	}
	if kind == common.KindDir {
		if err := fs.initDir(inum); err != nil {
			fs.freeInode(inum)
			return 0, fmt.Errorf("create %q: %w", name, err)
		}
	}
	if err := fs.Insert(parent, name, inum); err != nil {
		fs.release(inum)
		return 0, err
	}
	util.DPrintf(2, "create: %q in %d -> %d %v\n", name, parent, inum, kind)
	return inum, nil
}

// initDir gives the new directory inum its first block.
func (fs *Fs) initDir(inum common.Inum) error {
	ip, err := fs.readInode(inum)
	if err != nil {
		return err
	}
	bn, err := fs.allocBlock()
	if err != nil {
		return err
	}
	ip.Direct[0] = bn
	if err := fs.writeInode(inum, ip); err != nil {
		fs.freeBlock(bn)
		return err
	}
	return nil
}

// release frees every block of inum and then inum itself.
func (fs *Fs) release(inum common.Inum) error {
	ip, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	if err := fs.shrink(inum, ip, 0, 0); err != nil {
		return err
	}
	return fs.freeInode(inum)
}

// CreateFile makes an empty regular file name in parent.
func (fs *Fs) CreateFile(parent common.Inum, name string) (common.Inum, error) {
	return fs.create(parent, name, common.KindFile)
}

// Mkdir makes an empty directory name in parent.
func (fs *Fs) Mkdir(parent common.Inum, name string) (common.Inum, error) {
	return fs.create(parent, name, common.KindDir)
}

// DeleteFile frees the regular file name in parent: its blocks, its inode,
// then its directory entry.
func (fs *Fs) DeleteFile(parent common.Inum, name string) error {
	inum, err := fs.Lookup(parent, name)
	if err != nil {
		return err
	}
	ip, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	if ip.Kind == common.KindDir {
		return fmt.Errorf("%q: %w", name, common.ErrIsDirectory)
	}
	if err := fs.release(inum); err != nil {
		return err
	}
	util.DPrintf(2, "delete: %q in %d (inode %d)\n", name, parent, inum)
	return fs.Remove(parent, name)
}

// Rmdir removes the empty directory name from parent.
func (fs *Fs) Rmdir(parent common.Inum, name string) error {
	inum, err := fs.Lookup(parent, name)
	if err != nil {
		return err
	}
	ip, err := fs.getDir(inum)
	if err != nil {
		return fmt.Errorf("%q: %w", name, err)
	}
	if ip.Size != 0 {
		return fmt.Errorf("%q: %w", name, common.ErrNotEmpty)
	}
	if err := fs.release(inum); err != nil {
		return err
	}
	util.DPrintf(2, "rmdir: %q in %d (inode %d)\n", name, parent, inum)
	return fs.Remove(parent, name)
}
