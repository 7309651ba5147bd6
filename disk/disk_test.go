package disk

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gdisk "github.com/tchajed/goose/machine/disk"

	"github.com/mit-pdos/imgfs/common"
)

func mkBlock(bsz uint64, b byte) Block {
	block := make(Block, bsz)
	for i := range block {
		block[i] = b
	}
	return block
}

// testDisk runs the same read/write checks against any Disk with at least
// four blocks.
func testDisk(t *testing.T, d Disk) {
	assert := assert.New(t)
	bsz := d.BlockSize()

	for a := uint64(0); a < 4; a++ {
		assert.NoError(d.Write(a, mkBlock(bsz, byte(a+1))))
	}
	for a := uint64(0); a < 4; a++ {
		b, err := d.Read(a)
		assert.NoError(err)
		assert.Equal(mkBlock(bsz, byte(a+1)), b, "block %d", a)
	}

	// overwrite one block; neighbours sharing storage are unaffected
	assert.NoError(d.Write(1, mkBlock(bsz, 9)))
	buf := make(Block, bsz)
	assert.NoError(d.ReadTo(0, buf))
	assert.Equal(mkBlock(bsz, 1), buf)
	assert.NoError(d.ReadTo(1, buf))
	assert.Equal(mkBlock(bsz, 9), buf)
	assert.NoError(d.ReadTo(2, buf))
	assert.Equal(mkBlock(bsz, 3), buf)

	sz, err := d.Size()
	assert.NoError(err)
	_, err = d.Read(sz)
	assert.True(errors.Is(err, common.ErrOutOfRange), "read past end")
	err = d.Write(sz, mkBlock(bsz, 0))
	assert.True(errors.Is(err, common.ErrOutOfRange), "write past end")

	assert.NoError(d.Barrier())
}

func TestMemDisk(t *testing.T) {
	for _, bsz := range []uint64{512, 1024, 4096} {
		d := NewMemDisk(bsz, 10)
		sz, _ := d.Size()
		assert.Equal(t, uint64(10), sz)
		testDisk(t, d)
	}
}

func TestMemDiskBadBlockSize(t *testing.T) {
	assert.Panics(t, func() { NewMemDisk(1000, 4) })
	assert.Panics(t, func() { NewMemDisk(256, 4) })
}

func TestFromGoose(t *testing.T) {
	md := gdisk.NewMemDisk(2)
	d, err := FromGoose(md, 1024)
	require.NoError(t, err)
	sz, _ := d.Size()
	assert.Equal(t, uint64(8), sz)
	testDisk(t, d)

	// fs block 1 is the second quarter of machine block 0
	mblk := md.Read(0)
	assert.Equal(t, byte(9), mblk[1024])
	assert.Equal(t, byte(1), mblk[1023])

	_, err = FromGoose(md, 8192)
	assert.True(t, errors.Is(err, common.ErrBadBlockSize))
}

func TestFromGooseWholeBlocks(t *testing.T) {
	md := gdisk.NewMemDisk(4)
	d, err := FromGoose(md, 4096)
	require.NoError(t, err)
	testDisk(t, d)

	// one fs block per machine block
	assert.Equal(t, mkBlock(4096, 9), Block(md.Read(1)))
	md.Write(3, mkBlock(4096, 7))
	buf := make(Block, 4096)
	require.NoError(t, d.ReadTo(3, buf))
	assert.Equal(t, mkBlock(4096, 7), buf)
}

func TestFileDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 512, 8)
	require.NoError(t, err)
	testDisk(t, d)
	require.NoError(t, d.Close())

	d2, err := OpenFileDisk(path, 1024)
	require.NoError(t, err)
	defer d2.Close()
	sz, _ := d2.Size()
	assert.Equal(t, uint64(4), sz, "reopened with a larger block size")
	b, err := d2.Read(0)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(512, 1), b[:512])
	assert.Equal(t, mkBlock(512, 9), b[512:])
}

func TestFileDiskOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	d, err := NewFileDisk(path, 512, 4)
	require.NoError(t, err)
	require.NoError(t, d.Write(3, mkBlock(512, 7)))
	require.NoError(t, d.Close())

	d, err = NewFileDisk(path, 512, 4)
	require.NoError(t, err)
	defer d.Close()
	b, err := d.Read(3)
	require.NoError(t, err)
	assert.Equal(t, mkBlock(512, 0), b, "new image starts zeroed")
}

func TestOpenFileDiskMissing(t *testing.T) {
	_, err := OpenFileDisk(filepath.Join(t.TempDir(), "nope"), 512)
	assert.Error(t, err)
	_, err = OpenFileDisk(filepath.Join(t.TempDir(), "nope"), 100)
	assert.True(t, errors.Is(err, common.ErrBadBlockSize))
}
