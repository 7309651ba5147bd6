package super

import (
	"fmt"

	"github.com/mit-pdos/imgfs/alloc"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/inode"
	"github.com/mit-pdos/imgfs/util"
)

//
// mkfs
//

// Format lays out a file system with nblocks data blocks and ninodes inodes
// on d, using d's block size. Every block of the image is zeroed; the root
// directory gets inode ROOTINUM and the first data block.
func Format(d disk.Disk, nblocks uint64, ninodes uint64) (*FsSuper, error) {
	fs, err := MkFsSuper(d.BlockSize(), nblocks, ninodes)
	if err != nil {
		return nil, err
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if fs.ImageBlocks() > sz {
		return nil, fmt.Errorf("%w: image needs %d blocks, device has %d",
			common.ErrGeometry, fs.ImageBlocks(), sz)
	}
	util.DPrintf(1, "Format: %v\n", fs)

	zero := make(disk.Block, fs.BlockSize)
	for bn := uint64(0); bn < fs.ImageBlocks(); bn++ {
		if err := d.Write(bn, zero); err != nil {
			return nil, fmt.Errorf("format: %w", err)
		}
	}
	if err := fs.Write(d); err != nil {
		return nil, err
	}
	if err := initRoot(d, fs); err != nil {
		return nil, fmt.Errorf("format: %w", err)
	}
	if err := d.Barrier(); err != nil {
		return nil, err
	}
	return fs, nil
}

// initRoot allocates the root inode and its first (empty) directory block.
func initRoot(d disk.Disk, fs *FsSuper) error {
	ibitmap, err := alloc.MkAlloc(d, fs.InodeBitmapStart, fs.NInodes)
	if err != nil {
		return err
	}
	dbitmap, err := alloc.MkAlloc(d, fs.DataBitmapStart, fs.NBlocks)
	if err != nil {
		return err
	}
	if err := ibitmap.MarkUsed(uint64(common.ROOTINUM)); err != nil {
		return err
	}
	n, err := dbitmap.AllocNum()
	if err != nil {
		return err
	}
	bn := fs.Data2Bnum(n)
	if err := d.Write(bn, make(disk.Block, fs.BlockSize)); err != nil {
		return err
	}

	root := inode.MkInode(common.KindDir)
	root.Direct[0] = bn
	itab := inode.MkTable(d, fs.InodeStartBlock(), fs.NInodes, ibitmap)
	if err := itab.Write(common.ROOTINUM, root); err != nil {
		return err
	}
	util.DPrintf(5, "root %v\n", root)

	fs.NFreeInodes = ibitmap.NumFree()
	fs.NFreeBlocks = dbitmap.NumFree()
	return fs.WriteCounts(d)
}
