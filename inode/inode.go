package inode

import (
	"fmt"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/alloc"
	"github.com/mit-pdos/imgfs/buf"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/util"
)

// Inode is the in-memory copy of an on-disk inode record:
//
//	kind | size | direct[NDIRECT] | indirect | reserved
//
// each field a little-endian 64-bit word. Block pointers are absolute block
// numbers in the image; NULLBNUM marks an unused slot.
type Inode struct {
	Kind     common.Kind
	Size     uint64
	Direct   [common.NDIRECT]common.Bnum
	Indirect common.Bnum
}

func MkInode(kind common.Kind) *Inode {
	return &Inode{Kind: kind}
}

func (ip *Inode) Encode() []byte {
	enc := marshal.NewEnc(common.INODESZ)
	enc.PutInt(uint64(ip.Kind))
	enc.PutInt(ip.Size)
	enc.PutInts(ip.Direct[:])
	enc.PutInt(ip.Indirect)
	return enc.Finish()
}

func Decode(b []byte) *Inode {
	ip := &Inode{}
	dec := marshal.NewDec(b)
	ip.Kind = common.Kind(dec.GetInt())
	ip.Size = dec.GetInt()
	copy(ip.Direct[:], dec.GetInts(common.NDIRECT))
	ip.Indirect = dec.GetInt()
	return ip
}

func (ip *Inode) IsFree() bool {
	return ip.Kind == common.KindFree
}

// HasBlocks reports whether any block pointer is in use.
func (ip *Inode) HasBlocks() bool {
	if ip.Indirect != common.NULLBNUM {
		return true
	}
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			return true
		}
	}
	return false
}

func (ip *Inode) String() string {
	return fmt.Sprintf("{%v size %d direct %v indirect %d}",
		ip.Kind, ip.Size, ip.Direct, ip.Indirect)
}

// Table is the on-disk inode array, starting at block start, together with
// the inode bitmap that tracks which records are live.
type Table struct {
	d      disk.Disk
	start  common.Bnum
	n      uint64
	bitmap *alloc.Alloc
}

func MkTable(d disk.Disk, start common.Bnum, n uint64, bitmap *alloc.Alloc) *Table {
	return &Table{d: d, start: start, n: n, bitmap: bitmap}
}

func (t *Table) inodesPerBlock() uint64 {
	return t.d.BlockSize() / common.INODESZ
}

func (t *Table) Inum2Addr(inum common.Inum) addr.Addr {
	per := t.inodesPerBlock()
	return addr.MkAddr(t.start+common.Bnum(uint64(inum)/per),
		(uint64(inum)%per)*common.INODESZ*8)
}

func (t *Table) checkInum(inum common.Inum) error {
	if uint64(inum) >= t.n {
		return fmt.Errorf("inode %d of %d: %w", inum, t.n, common.ErrInvalidInode)
	}
	return nil
}

func (t *Table) Read(inum common.Inum) (*Inode, error) {
	if err := t.checkInum(inum); err != nil {
		return nil, err
	}
	b, err := buf.ReadBuf(t.d, t.Inum2Addr(inum), common.INODESZ*8)
	if err != nil {
		return nil, err
	}
	ip := Decode(b.Data)
	if !ip.Kind.Valid() {
		return nil, fmt.Errorf("inode %d has kind %d: %w", inum, ip.Kind,
			common.ErrCorruptImage)
	}
	return ip, nil
}

func (t *Table) Write(inum common.Inum, ip *Inode) error {
	if err := t.checkInum(inum); err != nil {
		return err
	}
	util.DPrintf(10, "inode write %d: %v\n", inum, ip)
	b := buf.MkBuf(t.Inum2Addr(inum), common.INODESZ*8, ip.Encode())
	return b.WriteDirect(t.d)
}

// Alloc claims the lowest free inode and persists a zeroed record of the
// given kind.
func (t *Table) Alloc(kind common.Kind) (common.Inum, error) {
	n, err := t.bitmap.AllocNum()
	if err != nil {
		return 0, fmt.Errorf("allocate inode: %w", err)
	}
	inum := common.Inum(n)
	if err := t.Write(inum, MkInode(kind)); err != nil {
		t.bitmap.FreeNum(n)
		return 0, err
	}
	util.DPrintf(3, "inode alloc %d %v\n", inum, kind)
	return inum, nil
}

// Free releases inum. The inode must not hold any blocks; callers truncate
// it first.
func (t *Table) Free(inum common.Inum) error {
	ip, err := t.Read(inum)
	if err != nil {
		return err
	}
	if ip.HasBlocks() {
		return fmt.Errorf("free inode %d: still holds blocks: %w", inum,
			common.ErrInvalidInode)
	}
	if err := t.bitmap.FreeNum(uint64(inum)); err != nil {
		return fmt.Errorf("free inode %d: %w", inum, err)
	}
	util.DPrintf(3, "inode free %d\n", inum)
	return t.Write(inum, MkInode(common.KindFree))
}
