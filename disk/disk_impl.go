package disk

import (
	"fmt"

	"golang.org/x/sys/unix"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/util"
)

var _ Disk = (*fileDisk)(nil)

// fileDisk is a disk image stored in a regular host file; block a lives at
// byte a*bsz.
type fileDisk struct {
	fd        int
	bsz       uint64
	numBlocks uint64
}

func checkBlockSize(bsz uint64) error {
	if !util.IsPow2(bsz) || bsz < common.MINBLOCKSIZE || bsz > common.MAXBLOCKSIZE {
		return fmt.Errorf("%w: %d", common.ErrBadBlockSize, bsz)
	}
	return nil
}

// NewFileDisk creates (or overwrites) the image at path, sized to exactly
// numBlocks blocks of bsz bytes.
func NewFileDisk(path string, bsz uint64, numBlocks uint64) (*fileDisk, error) {
	if err := checkBlockSize(bsz); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CREAT, 0666)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// drop stale contents of an existing image
	if err := unix.Ftruncate(fd, 0); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	if err := unix.Ftruncate(fd, int64(numBlocks*bsz)); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("truncate %s: %w", path, err)
	}
	util.DPrintf(1, "NewFileDisk: %s %d blocks of %d bytes\n", path, numBlocks, bsz)
	return &fileDisk{fd: fd, bsz: bsz, numBlocks: numBlocks}, nil
}

// OpenFileDisk opens an existing image. Trailing bytes that do not fill a
// whole block are not addressable.
func OpenFileDisk(path string, bsz uint64) (*fileDisk, error) {
	if err := checkBlockSize(bsz); err != nil {
		return nil, err
	}
	fd, err := unix.Open(path, unix.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var stat unix.Stat_t
	if err := unix.Fstat(fd, &stat); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if stat.Mode&unix.S_IFMT != unix.S_IFREG {
		unix.Close(fd)
		return nil, fmt.Errorf("%s: not a regular file", path)
	}
	n := uint64(stat.Size) / bsz
	util.DPrintf(1, "OpenFileDisk: %s %d blocks of %d bytes\n", path, n, bsz)
	return &fileDisk{fd: fd, bsz: bsz, numBlocks: n}, nil
}

func (d *fileDisk) ReadTo(a uint64, buf Block) error {
	if uint64(len(buf)) != d.bsz {
		panic("buffer is not block-sized")
	}
	if a >= d.numBlocks {
		return fmt.Errorf("out-of-bounds read at %v: %w", a, common.ErrOutOfRange)
	}
	n, err := unix.Pread(d.fd, buf, int64(a*d.bsz))
	if err != nil {
		return fmt.Errorf("read block %v: %w", a, err)
	}
	if uint64(n) != d.bsz {
		return fmt.Errorf("read block %v: short read (%d bytes)", a, n)
	}
	util.DPrintf(20, "read: %v\n", a)
	return nil
}

func (d *fileDisk) Read(a uint64) (Block, error) {
	buf := make([]byte, d.bsz)
	err := d.ReadTo(a, buf)
	return buf, err
}

func (d *fileDisk) Write(a uint64, v Block) error {
	if uint64(len(v)) != d.bsz {
		panic(fmt.Errorf("v is not block sized (%d bytes)", len(v)))
	}
	if a >= d.numBlocks {
		return fmt.Errorf("out-of-bounds write at %v: %w", a, common.ErrOutOfRange)
	}
	n, err := unix.Pwrite(d.fd, v, int64(a*d.bsz))
	if err != nil {
		return fmt.Errorf("write block %v: %w", a, err)
	}
	if uint64(n) != d.bsz {
		return fmt.Errorf("write block %v: short write (%d bytes)", a, n)
	}
	util.DPrintf(20, "write: %v\n", a)
	return nil
}

func (d *fileDisk) BlockSize() uint64 {
	return d.bsz
}

func (d *fileDisk) Size() (uint64, error) {
	return d.numBlocks, nil
}

func (d *fileDisk) Barrier() error {
	// NOTE: on macOS, this flushes to the drive but doesn't actually issue a
	// disk barrier; see https://golang.org/src/internal/poll/fd_fsync_darwin.go
	// for more details. The correct replacement is to issue a fcntl syscall with
	// cmd F_FULLFSYNC.
	if err := unix.Fsync(d.fd); err != nil {
		return fmt.Errorf("file sync failed: %w", err)
	}
	util.DPrintf(10, "barrier\n")
	return nil
}

func (d *fileDisk) Close() error {
	return unix.Close(d.fd)
}
