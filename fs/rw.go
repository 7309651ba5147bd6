package fs

import (
	"fmt"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/inode"
	"github.com/mit-pdos/imgfs/util"
)

// Read returns up to n bytes of inum starting at off, fewer if the file
// ends first.
func (fs *Fs) Read(inum common.Inum, off uint64, n uint64) ([]byte, error) {
	ip, err := fs.getInode(inum)
	if err != nil {
		return nil, err
	}
	return fs.readAt(ip, off, n)
}

func (fs *Fs) readAt(ip *inode.Inode, off uint64, n uint64) ([]byte, error) {
	if off > ip.Size {
		return nil, fmt.Errorf("read at %d of %d: %w", off, ip.Size, common.ErrOutOfRange)
	}
	n = util.Min(n, ip.Size-off)
	data := make([]byte, 0, n)
	bsz := fs.bsz()
	for uint64(len(data)) < n {
		pos := off + uint64(len(data))
		boff := pos % bsz
		m := util.Min(bsz-boff, n-uint64(len(data)))
		bn, err := fs.bmap(ip, pos/bsz)
		if err != nil {
			return nil, err
		}
		if bn == common.NULLBNUM {
			return nil, fmt.Errorf("%w: file block %d within size %d is unmapped",
				common.ErrCorruptImage, pos/bsz, ip.Size)
		}
		if _, err := fs.dataIndex(bn); err != nil {
			return nil, err
		}
		blk, err := fs.d.Read(bn)
		if err != nil {
			return nil, err
		}
		data = append(data, blk[boff:boff+m]...)
	}
	return data, nil
}

// Write stores data at off in the regular file inum, growing it as needed.
// It returns the number of bytes written. If the disk fills up part way,
// the bytes written so far stay and the size covers exactly them.
func (fs *Fs) Write(inum common.Inum, off uint64, data []byte) (uint64, error) {
	ip, err := fs.getInode(inum)
	if err != nil {
		return 0, err
	}
	if ip.Kind == common.KindDir {
		return 0, fmt.Errorf("write inode %d: %w", inum, common.ErrIsDirectory)
	}
	return fs.writeAt(inum, ip, off, data)
}

func (fs *Fs) writeAt(inum common.Inum, ip *inode.Inode, off uint64, data []byte) (uint64, error) {
	if off > ip.Size {
		return 0, fmt.Errorf("write at %d of %d: %w", off, ip.Size, common.ErrOutOfRange)
	}
	count := uint64(len(data))
	if util.SumOverflows(off, count) || off+count > fs.Super.MaxFileSize() {
		return 0, fmt.Errorf("write %d bytes at %d, max %d: %w",
			count, off, fs.Super.MaxFileSize(), common.ErrFileTooLarge)
	}

	hadIndirect := ip.Indirect != common.NULLBNUM
	bsz := fs.bsz()
	var n uint64
	var werr error
	for n < count {
		pos := off + n
		boff := pos % bsz
		m := util.Min(bsz-boff, count-n)
		bn, err := fs.bmapAlloc(ip, pos/bsz)
		if err != nil {
			werr = err
			break
		}
		var blk []byte
		if m == bsz {
			blk = data[n : n+m]
		} else {
			blk, err = fs.d.Read(bn)
			if err != nil {
				werr = err
				break
			}
			copy(blk[boff:], data[n:n+m])
		}
		if err := fs.d.Write(bn, blk); err != nil {
			werr = err
			break
		}
		n += m
	}

	if off+n > ip.Size {
		ip.Size = off + n
	}
	if werr != nil && !hadIndirect && ip.Indirect != common.NULLBNUM {
		// the indirect block was claimed for a data block we never got
		if err := fs.freeFrom(inum, ip, util.RoundUp(off+n, bsz)); err != nil {
			return n, err
		}
	} else if err := fs.writeInode(inum, ip); err != nil {
		return n, err
	}
	if werr != nil {
		util.DPrintf(1, "write inode %d: %d of %d bytes: %v\n", inum, n, count, werr)
		return n, fmt.Errorf("write inode %d after %d bytes: %w", inum, n, werr)
	}
	return n, nil
}

// Truncate sets the size of the regular file inum. Shrinking releases the
// blocks past the new end; growing appends zero bytes.
func (fs *Fs) Truncate(inum common.Inum, size uint64) error {
	ip, err := fs.getInode(inum)
	if err != nil {
		return err
	}
	if ip.Kind == common.KindDir {
		return fmt.Errorf("truncate inode %d: %w", inum, common.ErrIsDirectory)
	}
	if size > ip.Size {
		if size > fs.Super.MaxFileSize() {
			return fmt.Errorf("truncate to %d, max %d: %w",
				size, fs.Super.MaxFileSize(), common.ErrFileTooLarge)
		}
		_, err := fs.writeAt(inum, ip, ip.Size, make([]byte, size-ip.Size))
		return err
	}
	return fs.shrink(inum, ip, size, 0)
}

// shrink cuts ip down to size bytes, keeping at least keep blocks.
func (fs *Fs) shrink(inum common.Inum, ip *inode.Inode, size uint64, keep uint64) error {
	ip.Size = size
	return fs.freeFrom(inum, ip, util.Max(util.RoundUp(size, fs.bsz()), keep))
}
