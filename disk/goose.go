package disk

import (
	"fmt"

	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/util"
)

var _ Disk = (*gooseDisk)(nil)

// gooseDisk packs file-system blocks into the fixed 4096-byte blocks of a
// goose disk: block a lives in machine block a/per at byte (a%per)*bsz.
type gooseDisk struct {
	d         gdisk.Disk
	bsz       uint64
	per       uint64
	numBlocks uint64
}

// FromGoose exposes d as a disk of bsz-byte blocks. bsz must divide the
// goose block size.
func FromGoose(d gdisk.Disk, bsz uint64) (*gooseDisk, error) {
	if err := checkBlockSize(bsz); err != nil {
		return nil, err
	}
	if gdisk.BlockSize%bsz != 0 {
		return nil, fmt.Errorf("%w: %d does not divide %d",
			common.ErrBadBlockSize, bsz, gdisk.BlockSize)
	}
	per := gdisk.BlockSize / bsz
	return &gooseDisk{d: d, bsz: bsz, per: per, numBlocks: d.Size() * per}, nil
}

// NewMemDisk returns an all-zero in-memory disk of numBlocks bsz-byte
// blocks, backed by a goose MemDisk. It panics on an unsupported block size.
func NewMemDisk(bsz uint64, numBlocks uint64) *gooseDisk {
	if checkBlockSize(bsz) != nil || gdisk.BlockSize%bsz != 0 {
		panic(fmt.Errorf("NewMemDisk: bad block size %d", bsz))
	}
	per := gdisk.BlockSize / bsz
	md := gdisk.NewMemDisk(util.RoundUp(numBlocks, per))
	return &gooseDisk{d: md, bsz: bsz, per: per, numBlocks: numBlocks}
}

func (d *gooseDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != d.bsz {
		panic("buffer is not block-sized")
	}
	if a >= d.numBlocks {
		return fmt.Errorf("out-of-bounds read at %v: %w", a, common.ErrOutOfRange)
	}
	if d.per == 1 {
		copy(buf, d.d.Read(a))
		return nil
	}
	mblk := d.d.Read(a / d.per)
	off := (a % d.per) * d.bsz
	copy(buf, mblk[off:off+d.bsz])
	return nil
}

func (d *gooseDisk) Read(a uint64) (Block, error) {
	buf := make(Block, d.bsz)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *gooseDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != d.bsz {
		panic(fmt.Errorf("v is not block-sized (%d bytes)", len(v)))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("out-of-bounds write at %v: %w", a, common.ErrOutOfRange)
	}
	if d.per == 1 {
		d.d.Write(a, v)
		return nil
	}
	// install the block into its machine block
	mblk := d.d.Read(a / d.per)
	off := (a % d.per) * d.bsz
	copy(mblk[off:off+d.bsz], v)
	d.d.Write(a/d.per, mblk)
	return nil
}

func (d *gooseDisk) BlockSize() uint64 {
	return d.bsz
}

func (d *gooseDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *gooseDisk) Barrier() error {
	d.d.Barrier()
	return nil
}

func (d *gooseDisk) Close() error {
	d.d.Close()
	return nil
}
