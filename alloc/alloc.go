package alloc

import (
	"fmt"
	"math/bits"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/buf"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/util"
)

// Alloc uses a bit map to allocate and free numbers. Bit 0 corresponds to
// number 0, bit 1 to 1, and so on. The bitmap starts at byte start of the
// image and is cached in memory; every change is written through to the
// disk before the call returns.
type Alloc struct {
	d      disk.Disk
	start  uint64 // byte offset of the bitmap in the image
	len    uint64 // number of bits
	bitmap []byte
}

// MkAlloc loads the len-bit bitmap at byte start of d.
func MkAlloc(d disk.Disk, start uint64, len uint64) (*Alloc, error) {
	a := &Alloc{
		d:     d,
		start: start,
		len:   len,
	}
	if err := a.load(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Alloc) load() error {
	bsz := a.d.BlockSize()
	nbytes := util.RoundUp(a.len, 8)
	a.bitmap = make([]byte, nbytes)
	for off := uint64(0); off < nbytes; {
		pos := a.start + off
		blk, err := a.d.Read(pos / bsz)
		if err != nil {
			return fmt.Errorf("load bitmap: %w", err)
		}
		off += uint64(copy(a.bitmap[off:], blk[pos%bsz:]))
	}
	return nil
}

func popCnt(b byte) uint64 {
	return uint64(bits.OnesCount8(b))
}

func (a *Alloc) Len() uint64 {
	return a.len
}

func (a *Alloc) checkNum(num uint64) error {
	if num >= a.len {
		return fmt.Errorf("bit %d of %d: %w", num, a.len, common.ErrOutOfRange)
	}
	return nil
}

func (a *Alloc) isSet(num uint64) bool {
	return a.bitmap[num/8]&(1<<(num%8)) != 0
}

// flip toggles bit num in the cache and writes its byte through; on a
// write failure the cache is restored.
func (a *Alloc) flip(num uint64) error {
	a.bitmap[num/8] ^= 1 << (num % 8)
	b := buf.MkBuf(addr.MkBitAddr(a.start, num, a.d.BlockSize()), 1,
		[]byte{a.bitmap[num/8]})
	if err := b.WriteDirect(a.d); err != nil {
		a.bitmap[num/8] ^= 1 << (num % 8)
		return err
	}
	return nil
}

// AllocNum claims the lowest free number.
func (a *Alloc) AllocNum() (uint64, error) {
	for i, b := range a.bitmap {
		if b == 0xFF {
			continue
		}
		for bit := uint64(0); bit < 8; bit++ {
			num := uint64(i)*8 + bit
			if num >= a.len {
				break
			}
			if b&(1<<bit) == 0 {
				if err := a.flip(num); err != nil {
					return 0, err
				}
				util.DPrintf(5, "AllocNum: %d\n", num)
				return num, nil
			}
		}
	}
	return 0, common.ErrOutOfSpace
}

func (a *Alloc) FreeNum(num uint64) error {
	if err := a.checkNum(num); err != nil {
		return err
	}
	if !a.isSet(num) {
		return fmt.Errorf("bit %d: %w", num, common.ErrDoubleFree)
	}
	util.DPrintf(5, "FreeNum: %d\n", num)
	return a.flip(num)
}

// MarkUsed sets num; it is a no-op if num is already in use.
func (a *Alloc) MarkUsed(num uint64) error {
	if err := a.checkNum(num); err != nil {
		return err
	}
	if a.isSet(num) {
		return nil
	}
	return a.flip(num)
}

func (a *Alloc) IsSet(num uint64) (bool, error) {
	if err := a.checkNum(num); err != nil {
		return false, err
	}
	return a.isSet(num), nil
}

func (a *Alloc) NumFree() uint64 {
	var used uint64
	for _, b := range a.bitmap {
		used += popCnt(b)
	}
	return a.len - used
}
