package super

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/buf"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/util"
)

// FsSuper describes the geometry of an image:
//
//	[superblock][inode bitmap][data bitmap][inode table][data region]
//
// All starts are byte offsets into the image; the inode table and the data
// region are block aligned. NBlocks counts data blocks only.
type FsSuper struct {
	Magic            uint64
	BlockSize        uint64
	NBlocks          uint64
	NInodes          uint64
	InodeBitmapStart uint64
	DataBitmapStart  uint64
	InodeStart       uint64
	DataStart        uint64

	// free-count caches, rewritten whenever an allocation changes
	NFreeBlocks uint64
	NFreeInodes uint64
}

func checkBlockSize(bsz uint64) error {
	if !util.IsPow2(bsz) || bsz < common.MINBLOCKSIZE || bsz > common.MAXBLOCKSIZE {
		return fmt.Errorf("%w: %d", common.ErrBadBlockSize, bsz)
	}
	return nil
}

// MkFsSuper computes the layout for nblocks data blocks and ninodes inodes.
func MkFsSuper(bsz uint64, nblocks uint64, ninodes uint64) (*FsSuper, error) {
	if err := checkBlockSize(bsz); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrGeometry, err)
	}
	if nblocks == 0 || ninodes == 0 {
		return nil, fmt.Errorf("%w: need at least one data block and one inode",
			common.ErrGeometry)
	}
	if nblocks > common.MAXCOUNT || ninodes > common.MAXCOUNT {
		return nil, fmt.Errorf("%w: %d blocks, %d inodes exceeds %d",
			common.ErrGeometry, nblocks, ninodes, common.MAXCOUNT)
	}
	ibstart := common.SUPERSZ
	dbstart := ibstart + util.RoundUp(ninodes, 8)
	istart := util.RoundUp(dbstart+util.RoundUp(nblocks, 8), bsz) * bsz
	dstart := istart + util.RoundUp(ninodes*common.INODESZ, bsz)*bsz
	return &FsSuper{
		Magic:            common.MAGIC,
		BlockSize:        bsz,
		NBlocks:          nblocks,
		NInodes:          ninodes,
		InodeBitmapStart: ibstart,
		DataBitmapStart:  dbstart,
		InodeStart:       istart,
		DataStart:        dstart,
		NFreeBlocks:      nblocks,
		NFreeInodes:      ninodes,
	}, nil
}

// FitBlocks returns the largest data block count whose image fits in size
// bytes.
func FitBlocks(bsz uint64, ninodes uint64, size uint64) (uint64, error) {
	nblocks := util.Min(size/bsz, common.MAXCOUNT)
	for nblocks > 0 {
		fs, err := MkFsSuper(bsz, nblocks, ninodes)
		if err != nil {
			return 0, err
		}
		if fs.ImageBlocks()*bsz <= size {
			return growBlocks(fs, size), nil
		}
		// shrink by the overshoot; the metadata never grows as nblocks drops
		over := util.RoundUp(fs.ImageBlocks()*bsz-size, bsz)
		if over >= nblocks {
			break
		}
		nblocks -= over
	}
	return 0, fmt.Errorf("%w: %d bytes cannot hold %d inodes and a data block",
		common.ErrGeometry, size, ninodes)
}

// growBlocks adds data blocks to fs while the image still fits in size
// bytes; a smaller data bitmap can free a metadata block.
func growBlocks(fs *FsSuper, size uint64) uint64 {
	n := fs.NBlocks
	for n < common.MAXCOUNT {
		next, err := MkFsSuper(fs.BlockSize, n+1, fs.NInodes)
		if err != nil || next.ImageBlocks()*fs.BlockSize > size {
			break
		}
		n++
	}
	return n
}

func (fs *FsSuper) String() string {
	return fmt.Sprintf("bsize %d blocks %d (free %d) inodes %d (free %d) "+
		"ibitmap@%d dbitmap@%d itable@%d data@%d",
		fs.BlockSize, fs.NBlocks, fs.NFreeBlocks, fs.NInodes, fs.NFreeInodes,
		fs.InodeBitmapStart, fs.DataBitmapStart, fs.InodeStart, fs.DataStart)
}

func (fs *FsSuper) Encode() []byte {
	enc := marshal.NewEnc(common.SUPERSZ)
	enc.PutInt(fs.Magic)
	enc.PutInt(fs.BlockSize)
	enc.PutInt(fs.NBlocks)
	enc.PutInt(fs.NInodes)
	enc.PutInt(fs.InodeBitmapStart)
	enc.PutInt(fs.DataBitmapStart)
	enc.PutInt(fs.InodeStart)
	enc.PutInt(fs.DataStart)
	enc.PutInt(fs.NFreeBlocks)
	enc.PutInt(fs.NFreeInodes)
	return enc.Finish()
}

func Decode(b []byte) *FsSuper {
	dec := marshal.NewDec(b)
	return &FsSuper{
		Magic:            dec.GetInt(),
		BlockSize:        dec.GetInt(),
		NBlocks:          dec.GetInt(),
		NInodes:          dec.GetInt(),
		InodeBitmapStart: dec.GetInt(),
		DataBitmapStart:  dec.GetInt(),
		InodeStart:       dec.GetInt(),
		DataStart:        dec.GetInt(),
		NFreeBlocks:      dec.GetInt(),
		NFreeInodes:      dec.GetInt(),
	}
}

// ImageBlocks is the size of the whole image in blocks.
func (fs *FsSuper) ImageBlocks() uint64 {
	return fs.DataStart/fs.BlockSize + fs.NBlocks
}

func (fs *FsSuper) InodeStartBlock() common.Bnum {
	return common.Bnum(fs.InodeStart / fs.BlockSize)
}

func (fs *FsSuper) DataStartBlock() common.Bnum {
	return common.Bnum(fs.DataStart / fs.BlockSize)
}

// Data2Bnum maps data block i (a data bitmap index) to its block number.
func (fs *FsSuper) Data2Bnum(i uint64) common.Bnum {
	return fs.DataStartBlock() + common.Bnum(i)
}

// Bnum2Data maps a block number back to its data bitmap index; ok is false
// for blocks outside the data region.
func (fs *FsSuper) Bnum2Data(bn common.Bnum) (uint64, bool) {
	if bn < fs.DataStartBlock() || bn >= fs.DataStartBlock()+fs.NBlocks {
		return 0, false
	}
	return uint64(bn - fs.DataStartBlock()), true
}

// MaxFileBlocks is the number of blocks addressable by one inode.
func (fs *FsSuper) MaxFileBlocks() uint64 {
	return common.NDIRECT + fs.NIndirect()
}

// NIndirect is the number of pointers held by an indirect block.
func (fs *FsSuper) NIndirect() uint64 {
	return fs.BlockSize / common.BNUMSZ
}

func (fs *FsSuper) MaxFileSize() uint64 {
	return fs.MaxFileBlocks() * fs.BlockSize
}

// Validate checks fs against itself and against a device of devBlocks
// blocks of devBsz bytes.
func (fs *FsSuper) Validate(devBsz uint64, devBlocks uint64) error {
	if fs.Magic != common.MAGIC {
		return fmt.Errorf("%w: bad magic %#x", common.ErrCorruptImage, fs.Magic)
	}
	want, err := MkFsSuper(fs.BlockSize, fs.NBlocks, fs.NInodes)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrCorruptImage, err)
	}
	if fs.InodeBitmapStart != want.InodeBitmapStart ||
		fs.DataBitmapStart != want.DataBitmapStart ||
		fs.InodeStart != want.InodeStart ||
		fs.DataStart != want.DataStart {
		return fmt.Errorf("%w: inconsistent layout %v", common.ErrCorruptImage, fs)
	}
	if fs.NFreeBlocks > fs.NBlocks || fs.NFreeInodes > fs.NInodes {
		return fmt.Errorf("%w: free counts exceed totals", common.ErrCorruptImage)
	}
	if devBsz != fs.BlockSize {
		return fmt.Errorf("%w: image block size %d, device block size %d",
			common.ErrCorruptImage, fs.BlockSize, devBsz)
	}
	if fs.ImageBlocks() > devBlocks {
		return fmt.Errorf("%w: image needs %d blocks, device has %d",
			common.ErrCorruptImage, fs.ImageBlocks(), devBlocks)
	}
	return nil
}

func superAddr() addr.Addr {
	return addr.MkAddr(0, 0)
}

// Write persists the superblock record.
func (fs *FsSuper) Write(d disk.Disk) error {
	b := buf.MkBuf(superAddr(), common.SUPERSZ*8, fs.Encode())
	if err := b.WriteDirect(d); err != nil {
		return fmt.Errorf("write superblock: %w", err)
	}
	return nil
}

// WriteCounts persists the free-count caches. The whole record is
// rewritten; the geometry fields never change after format.
func (fs *FsSuper) WriteCounts(d disk.Disk) error {
	util.DPrintf(10, "WriteCounts: blocks %d inodes %d\n", fs.NFreeBlocks, fs.NFreeInodes)
	return fs.Write(d)
}

// Peek decodes the superblock without checking it against the device; it
// only verifies the magic and block size so a caller can reopen the device
// with the right block size.
func Peek(d disk.Disk) (*FsSuper, error) {
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if sz == 0 {
		return nil, fmt.Errorf("%w: image smaller than one block", common.ErrCorruptImage)
	}
	b, err := buf.ReadBuf(d, superAddr(), common.SUPERSZ*8)
	if err != nil {
		return nil, fmt.Errorf("read superblock: %w", err)
	}
	fs := Decode(b.Data)
	if fs.Magic != common.MAGIC {
		return nil, fmt.Errorf("%w: bad magic %#x", common.ErrCorruptImage, fs.Magic)
	}
	if err := checkBlockSize(fs.BlockSize); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrCorruptImage, err)
	}
	return fs, nil
}

// Load reads and validates the superblock of d.
func Load(d disk.Disk) (*FsSuper, error) {
	fs, err := Peek(d)
	if err != nil {
		return nil, err
	}
	sz, err := d.Size()
	if err != nil {
		return nil, err
	}
	if err := fs.Validate(d.BlockSize(), sz); err != nil {
		return nil, err
	}
	util.DPrintf(1, "Load: %v\n", fs)
	return fs, nil
}
