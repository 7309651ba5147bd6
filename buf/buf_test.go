package buf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/imgfs/addr"
	"github.com/mit-pdos/imgfs/disk"
)

func TestInstallOneBit(t *testing.T) {
	r := installOneBit(byte(0x1F), byte(0x0), 4)
	assert.Equal(t, byte(0x10), r)
	r = installOneBit(byte(0xF), byte(0x1F), 4)
	assert.Equal(t, byte(0x0F), r)
	r = installOneBit(byte(0xFF), byte(0xFF), 2)
	assert.Equal(t, byte(0xFF), r)
}

func TestInstallBytes(t *testing.T) {
	dst := make([]byte, 8)
	dst[1] = 0xAA
	installBytes([]byte{1, 2, 3}, dst, 16, 24)
	assert.Equal(t, []byte{0, 0xAA, 1, 2, 3, 0, 0, 0}, dst)
}

func TestInstall(t *testing.T) {
	blk := make(disk.Block, 512)
	b := MkBuf(addr.MkAddr(0, 8*10+3), 1, []byte{0x08})
	b.Install(blk)
	assert.Equal(t, byte(0x08), blk[10])

	b = MkBuf(addr.MkAddr(0, 8*128), 8*4, []byte{9, 8, 7, 6})
	b.Install(blk)
	assert.Equal(t, []byte{9, 8, 7, 6}, blk[128:132])
	assert.Equal(t, byte(0x08), blk[10], "bit unaffected")

	b = MkBuf(addr.MkAddr(0, 3), 4, []byte{0xFF})
	assert.Panics(t, func() { b.Install(blk) })
}

func TestWriteDirect(t *testing.T) {
	d := disk.NewMemDisk(512, 4)
	full := make([]byte, 512)
	full[0] = 0xFF
	require.NoError(t, d.Write(2, full))

	// a bit: only that bit changes
	b := MkBuf(addr.MkBitAddr(1024, 9, 512), 1, []byte{0x00})
	require.NoError(t, b.WriteDirect(d))
	assert.False(t, b.IsDirty())
	blk, _ := d.Read(2)
	assert.Equal(t, byte(0xFF), blk[0])

	b = MkBuf(addr.MkBitAddr(1024, 1, 512), 1, []byte{0x00})
	require.NoError(t, b.WriteDirect(d))
	blk, _ = d.Read(2)
	assert.Equal(t, byte(0xFD), blk[0])

	// a record in the middle of a block
	rec := MkBuf(addr.MkByteAddr(1024+256, 512), 8*4, []byte{1, 2, 3, 4})
	require.NoError(t, rec.WriteDirect(d))
	rb, err := ReadBuf(d, addr.MkByteAddr(1024+256, 512), 8*4)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3, 4}, rb.Data)

	// a whole block
	whole := MkBuf(addr.MkAddr(3, 0), 8*512, make([]byte, 512))
	whole.Data[511] = 7
	require.NoError(t, whole.WriteDirect(d))
	blk, _ = d.Read(3)
	assert.Equal(t, byte(7), blk[511])
}

func TestBnum(t *testing.T) {
	b := MkBuf(addr.MkAddr(0, 0), 8*16, make([]byte, 16))
	b.BnumPut(8, 0x0102030405)
	assert.True(t, b.IsDirty())
	assert.Equal(t, uint64(0x0102030405), b.BnumGet(8))
	assert.Equal(t, uint64(0), b.BnumGet(0))
	assert.Equal(t, byte(0x05), b.Data[8], "little endian")
}
