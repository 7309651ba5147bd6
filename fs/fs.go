// Package fs is a mounted image: the directory layer and the file I/O
// engine on top of the superblock, the two allocation bitmaps and the inode
// table. An Fs is a single-threaded session; every mutation reaches the
// disk before the call returns.
package fs

import (
	"fmt"

	"github.com/mit-pdos/imgfs/alloc"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/inode"
	"github.com/mit-pdos/imgfs/super"
	"github.com/mit-pdos/imgfs/util"
)

type Fs struct {
	Super   *super.FsSuper
	d       disk.Disk
	ibitmap *alloc.Alloc
	dbitmap *alloc.Alloc
	itab    *inode.Table
	zero    disk.Block
}

// Mount loads the superblock and bitmaps of a formatted disk. Free-count
// caches that disagree with the bitmaps are rewritten.
func Mount(d disk.Disk) (*Fs, error) {
	sb, err := super.Load(d)
	if err != nil {
		return nil, err
	}
	ibitmap, err := alloc.MkAlloc(d, sb.InodeBitmapStart, sb.NInodes)
	if err != nil {
		return nil, err
	}
	dbitmap, err := alloc.MkAlloc(d, sb.DataBitmapStart, sb.NBlocks)
	if err != nil {
		return nil, err
	}
	fs := &Fs{
		Super:   sb,
		d:       d,
		ibitmap: ibitmap,
		dbitmap: dbitmap,
		itab:    inode.MkTable(d, sb.InodeStartBlock(), sb.NInodes, ibitmap),
		zero:    make(disk.Block, sb.BlockSize),
	}
	root, err := fs.itab.Read(common.ROOTINUM)
	if err != nil {
		return nil, err
	}
	if root.Kind != common.KindDir {
		return nil, fmt.Errorf("%w: root inode is %v", common.ErrCorruptImage, root.Kind)
	}
	if sb.NFreeBlocks != dbitmap.NumFree() || sb.NFreeInodes != ibitmap.NumFree() {
		util.DPrintf(1, "Mount: fixing free counts %d/%d -> %d/%d\n",
			sb.NFreeBlocks, sb.NFreeInodes, dbitmap.NumFree(), ibitmap.NumFree())
		if err := fs.syncCounts(); err != nil {
			return nil, err
		}
	}
	util.DPrintf(1, "Mount: %v\n", sb)
	return fs, nil
}

// Open mounts the image file at path.
func Open(path string) (*Fs, error) {
	var d disk.Disk
	d, err := disk.OpenFileDisk(path, common.MINBLOCKSIZE)
	if err != nil {
		return nil, err
	}
	sb, err := super.Peek(d)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if sb.BlockSize != d.BlockSize() {
		d.Close()
		d, err = disk.OpenFileDisk(path, sb.BlockSize)
		if err != nil {
			return nil, err
		}
	}
	fs, err := Mount(d)
	if err != nil {
		d.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return fs, nil
}

// Close flushes and releases the disk.
func (fs *Fs) Close() error {
	if err := fs.d.Barrier(); err != nil {
		fs.d.Close()
		return err
	}
	return fs.d.Close()
}

func (fs *Fs) Disk() disk.Disk {
	return fs.d
}

func (fs *Fs) bsz() uint64 {
	return fs.Super.BlockSize
}

func (fs *Fs) syncCounts() error {
	fs.Super.NFreeBlocks = fs.dbitmap.NumFree()
	fs.Super.NFreeInodes = fs.ibitmap.NumFree()
	return fs.Super.WriteCounts(fs.d)
}

func (fs *Fs) readInode(inum common.Inum) (*inode.Inode, error) {
	return fs.itab.Read(inum)
}

// getInode reads a live inode.
func (fs *Fs) getInode(inum common.Inum) (*inode.Inode, error) {
	ip, err := fs.itab.Read(inum)
	if err != nil {
		return nil, err
	}
	if ip.IsFree() {
		return nil, fmt.Errorf("inode %d is free: %w", inum, common.ErrInvalidInode)
	}
	return ip, nil
}

func (fs *Fs) writeInode(inum common.Inum, ip *inode.Inode) error {
	return fs.itab.Write(inum, ip)
}

func (fs *Fs) allocInode(kind common.Kind) (common.Inum, error) {
	inum, err := fs.itab.Alloc(kind)
	if err != nil {
		return 0, err
	}
	return inum, fs.syncCounts()
}

func (fs *Fs) freeInode(inum common.Inum) error {
	if err := fs.itab.Free(inum); err != nil {
		return err
	}
	return fs.syncCounts()
}

// allocBlock claims the lowest free data block and zeroes it.
func (fs *Fs) allocBlock() (common.Bnum, error) {
	n, err := fs.dbitmap.AllocNum()
	if err != nil {
		return common.NULLBNUM, fmt.Errorf("allocate block: %w", err)
	}
	bn := fs.Super.Data2Bnum(n)
	if err := fs.d.Write(bn, fs.zero); err != nil {
		fs.dbitmap.FreeNum(n)
		return common.NULLBNUM, err
	}
	util.DPrintf(5, "allocBlock: %d\n", bn)
	return bn, fs.syncCounts()
}

func (fs *Fs) freeBlock(bn common.Bnum) error {
	n, err := fs.dataIndex(bn)
	if err != nil {
		return err
	}
	if err := fs.dbitmap.FreeNum(n); err != nil {
		return fmt.Errorf("free block %d: %w", bn, err)
	}
	util.DPrintf(5, "freeBlock: %d\n", bn)
	return fs.syncCounts()
}

func (fs *Fs) dataIndex(bn common.Bnum) (uint64, error) {
	n, ok := fs.Super.Bnum2Data(bn)
	if !ok {
		return 0, fmt.Errorf("%w: block pointer %d outside data region",
			common.ErrCorruptImage, bn)
	}
	return n, nil
}

// StatFs summarizes space usage.
type StatFs struct {
	BlockSize   uint64
	NBlocks     uint64
	NFreeBlocks uint64
	NInodes     uint64
	NFreeInodes uint64
	MaxFileSize uint64
}

func (fs *Fs) StatFs() StatFs {
	return StatFs{
		BlockSize:   fs.Super.BlockSize,
		NBlocks:     fs.Super.NBlocks,
		NFreeBlocks: fs.Super.NFreeBlocks,
		NInodes:     fs.Super.NInodes,
		NFreeInodes: fs.Super.NFreeInodes,
		MaxFileSize: fs.Super.MaxFileSize(),
	}
}

// Stat describes one inode.
type Stat struct {
	Inum    common.Inum
	Kind    common.Kind
	Size    uint64
	NBlocks uint64 // data and indirect blocks held
}

func (fs *Fs) Stat(inum common.Inum) (*Stat, error) {
	ip, err := fs.getInode(inum)
	if err != nil {
		return nil, err
	}
	blocks, err := fs.inodeBlocks(ip)
	if err != nil {
		return nil, err
	}
	return &Stat{Inum: inum, Kind: ip.Kind, Size: ip.Size, NBlocks: uint64(len(blocks))}, nil
}
