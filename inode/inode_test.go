package inode

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/alloc"
	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
)

func TestEncodeDecode(t *testing.T) {
	ip := MkInode(common.KindFile)
	ip.Size = 1000
	ip.Direct[0] = 5
	ip.Direct[11] = 77
	ip.Indirect = 9
	b := ip.Encode()
	assert.Equal(t, int(common.INODESZ), len(b))
	assert.Equal(t, byte(common.KindFile), b[0])
	assert.Equal(t, ip, Decode(b))

	assert.Equal(t, make([]byte, common.INODESZ), MkInode(common.KindFree).Encode(),
		"a free inode is all zero")
}

func TestHasBlocks(t *testing.T) {
	ip := MkInode(common.KindFile)
	assert.False(t, ip.HasBlocks())
	ip.Direct[3] = 8
	assert.True(t, ip.HasBlocks())
	ip.Direct[3] = 0
	ip.Indirect = 8
	assert.True(t, ip.HasBlocks())
}

func mkTable(t *testing.T, n uint64) (*Table, disk.Disk) {
	d := disk.NewMemDisk(512, 16)
	bm, err := alloc.MkAlloc(d, 128, n)
	require.NoError(t, err)
	return MkTable(d, 1, n, bm), d
}

func TestInum2Addr(t *testing.T) {
	tab, _ := mkTable(t, 16)
	assert.Equal(t, addr.MkAddr(1, 0), tab.Inum2Addr(0))
	assert.Equal(t, addr.MkAddr(1, 3*128*8), tab.Inum2Addr(3))
	assert.Equal(t, addr.MkAddr(2, 0), tab.Inum2Addr(4))
	assert.Equal(t, addr.MkAddr(4, 3*128*8), tab.Inum2Addr(15))
}

func TestReadWrite(t *testing.T) {
	tab, d := mkTable(t, 16)
	ip := MkInode(common.KindDir)
	ip.Size = 64
	ip.Direct[0] = 12
	require.NoError(t, tab.Write(5, ip))

	ip2, err := tab.Read(5)
	require.NoError(t, err)
	assert.Equal(t, ip, ip2)

	// neighbours in the same block are untouched
	ip4, err := tab.Read(4)
	require.NoError(t, err)
	assert.True(t, ip4.IsFree())

	blk, _ := d.Read(2)
	assert.Equal(t, byte(common.KindDir), blk[128])

	_, err = tab.Read(16)
	assert.True(t, errors.Is(err, common.ErrInvalidInode))
	assert.True(t, errors.Is(tab.Write(99, ip), common.ErrInvalidInode))
}

func TestReadCorrupt(t *testing.T) {
	tab, d := mkTable(t, 16)
	blk := make([]byte, 512)
	blk[0] = 42
	require.NoError(t, d.Write(1, blk))
	_, err := tab.Read(0)
	assert.True(t, errors.Is(err, common.ErrCorruptImage))
}

func TestAllocFree(t *testing.T) {
	tab, _ := mkTable(t, 4)
	for i := 0; i < 4; i++ {
		inum, err := tab.Alloc(common.KindFile)
		require.NoError(t, err)
		assert.Equal(t, common.Inum(i), inum)
		ip, err := tab.Read(inum)
		require.NoError(t, err)
		assert.Equal(t, common.KindFile, ip.Kind)
	}
	_, err := tab.Alloc(common.KindFile)
	assert.True(t, errors.Is(err, common.ErrOutOfSpace))

	ip, _ := tab.Read(2)
	ip.Direct[0] = 40
	require.NoError(t, tab.Write(2, ip))
	err = tab.Free(2)
	assert.True(t, errors.Is(err, common.ErrInvalidInode), "inode still holds blocks")

	ip.Direct[0] = 0
	require.NoError(t, tab.Write(2, ip))
	require.NoError(t, tab.Free(2))
	ip, _ = tab.Read(2)
	assert.True(t, ip.IsFree())
	set, _ := tab.bitmap.IsSet(2)
	assert.False(t, set)

	assert.True(t, errors.Is(tab.Free(2), common.ErrDoubleFree))

	inum, err := tab.Alloc(common.KindDir)
	require.NoError(t, err)
	assert.Equal(t, common.Inum(2), inum)
}
