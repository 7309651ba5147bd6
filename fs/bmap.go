package fs

import (
	"fmt"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/buf"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/inode"
)

//
// Mapping file block indices to disk blocks: NDIRECT direct pointers, then
// one indirect block holding NIndirect() more.
//

// readIndirect loads the indirect block bn as a whole-block buf; pointer i
// is at byte i*BNUMSZ.
func (fs *Fs) readIndirect(bn common.Bnum) (*buf.Buf, error) {
	if _, err := fs.dataIndex(bn); err != nil {
		return nil, err
	}
	return buf.ReadBuf(fs.d, addr.MkAddr(bn, 0), fs.bsz()*8)
}

func ptrOff(i uint64) uint64 {
	return i * common.BNUMSZ
}

// bmap returns the disk block holding file block bi of ip, or NULLBNUM if
// it has none.
func (fs *Fs) bmap(ip *inode.Inode, bi uint64) (common.Bnum, error) {
	if bi < common.NDIRECT {
		return ip.Direct[bi], nil
	}
	bi -= common.NDIRECT
	if bi >= fs.Super.NIndirect() {
		return common.NULLBNUM, fmt.Errorf("file block %d: %w",
			bi+common.NDIRECT, common.ErrFileTooLarge)
	}
	if ip.Indirect == common.NULLBNUM {
		return common.NULLBNUM, nil
	}
	ib, err := fs.readIndirect(ip.Indirect)
	if err != nil {
		return common.NULLBNUM, err
	}
	return ib.BnumGet(ptrOff(bi)), nil
}

// bmapAlloc is bmap that allocates a missing block, and the indirect block
// first if needed. ip is updated in memory only; the caller persists it.
func (fs *Fs) bmapAlloc(ip *inode.Inode, bi uint64) (common.Bnum, error) {
	if bi < common.NDIRECT {
		if ip.Direct[bi] == common.NULLBNUM {
			bn, err := fs.allocBlock()
			if err != nil {
				return common.NULLBNUM, err
			}
			ip.Direct[bi] = bn
		}
		return ip.Direct[bi], nil
	}
	bi -= common.NDIRECT
	if bi >= fs.Super.NIndirect() {
		return common.NULLBNUM, fmt.Errorf("file block %d: %w",
			bi+common.NDIRECT, common.ErrFileTooLarge)
	}
	if ip.Indirect == common.NULLBNUM {
		bn, err := fs.allocBlock()
		if err != nil {
			return common.NULLBNUM, err
		}
		ip.Indirect = bn
	}
	ib, err := fs.readIndirect(ip.Indirect)
	if err != nil {
		return common.NULLBNUM, err
	}
	if bn := ib.BnumGet(ptrOff(bi)); bn != common.NULLBNUM {
		return bn, nil
	}
	bn, err := fs.allocBlock()
	if err != nil {
		return common.NULLBNUM, err
	}
	ib.BnumPut(ptrOff(bi), bn)
	if err := ib.WriteDirect(fs.d); err != nil {
		fs.freeBlock(bn)
		return common.NULLBNUM, err
	}
	return bn, nil
}

// inodeBlocks lists every block ip holds, the indirect block included.
func (fs *Fs) inodeBlocks(ip *inode.Inode) ([]common.Bnum, error) {
	var blocks []common.Bnum
	for _, bn := range ip.Direct {
		if bn != common.NULLBNUM {
			blocks = append(blocks, bn)
		}
	}
	if ip.Indirect != common.NULLBNUM {
		ib, err := fs.readIndirect(ip.Indirect)
		if err != nil {
			return nil, err
		}
		for i := uint64(0); i < fs.Super.NIndirect(); i++ {
			if bn := ib.BnumGet(ptrOff(i)); bn != common.NULLBNUM {
				blocks = append(blocks, bn)
			}
		}
		blocks = append(blocks, ip.Indirect)
	}
	return blocks, nil
}

// freeFrom releases file blocks bi >= first of inum, and the indirect block
// once none of its pointers is in use. The pointers are cleared and ip is
// written before any block goes back to the bitmap: a failure part way
// leaks blocks but never leaves a free block referenced.
func (fs *Fs) freeFrom(inum common.Inum, ip *inode.Inode, first uint64) error {
	var freed []common.Bnum
	for bi := first; bi < common.NDIRECT; bi++ {
		if ip.Direct[bi] != common.NULLBNUM {
			freed = append(freed, ip.Direct[bi])
			ip.Direct[bi] = common.NULLBNUM
		}
	}
	if ip.Indirect != common.NULLBNUM {
		ib, err := fs.readIndirect(ip.Indirect)
		if err != nil {
			return err
		}
		start := uint64(0)
		if first > common.NDIRECT {
			start = first - common.NDIRECT
		}
		for i := start; i < fs.Super.NIndirect(); i++ {
			if bn := ib.BnumGet(ptrOff(i)); bn != common.NULLBNUM {
				freed = append(freed, bn)
				ib.BnumPut(ptrOff(i), common.NULLBNUM)
			}
		}
		if fs.indirectEmpty(ib) {
			freed = append(freed, ip.Indirect)
			ip.Indirect = common.NULLBNUM
		} else if ib.IsDirty() {
			if err := ib.WriteDirect(fs.d); err != nil {
				return err
			}
		}
	}
	if err := fs.writeInode(inum, ip); err != nil {
		return err
	}
	for _, bn := range freed {
		if err := fs.freeBlock(bn); err != nil {
			return err
		}
	}
	return nil
}

func (fs *Fs) indirectEmpty(ib *buf.Buf) bool {
	for i := uint64(0); i < fs.Super.NIndirect(); i++ {
		if ib.BnumGet(ptrOff(i)) != common.NULLBNUM {
			return false
		}
	}
	return true
}
