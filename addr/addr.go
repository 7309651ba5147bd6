package addr

import (
	"github.com/mit-pdos/imgfs/common"
)

// Addr identifies the start of a disk object.
//
// Blkno is the block number containing the object, and Off is the location of
// the object within the block (expressed as a bit offset). The size of the
// object is determined by the context in which Addr is used.
type Addr struct {
	Blkno common.Bnum
	Off   uint64 // offset in bits
}

func MkAddr(blkno common.Bnum, off uint64) Addr {
	return Addr{Blkno: blkno, Off: off}
}

// MkByteAddr locates the byte at image position pos.
func MkByteAddr(pos uint64, bsz uint64) Addr {
	return MkAddr(common.Bnum(pos/bsz), (pos%bsz)*8)
}

// MkBitAddr locates bit n of a bitmap that starts at image byte start.
func MkBitAddr(start uint64, n uint64, bsz uint64) Addr {
	a := MkByteAddr(start+n/8, bsz)
	a.Off += n % 8
	return a
}
