package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/fs"
)

func TestMkfsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	var stdout, stderr bytes.Buffer
	require.NoError(t, run([]string{path}, &stdout, &stderr))
	assert.Contains(t, stdout.String(), "bsize 1024 blocks 128")

	fsys, err := fs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()
	st := fsys.StatFs()
	assert.Equal(t, uint64(1024), st.BlockSize)
	assert.Equal(t, uint64(128), st.NBlocks)
	assert.Equal(t, uint64(127), st.NFreeBlocks)
	assert.Equal(t, uint64(15), st.NFreeInodes)
	assert.NoError(t, fsys.Check())
}

func TestMkfsGeometry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	var stdout, stderr bytes.Buffer
	err := run([]string{"-bsize", "512", "-blocks", "64", "-inodes", "16", path},
		&stdout, &stderr)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, int64(69*512), fi.Size())
}

func TestMkfsSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	var stdout, stderr bytes.Buffer
	err := run([]string{"-bsize", "4096", "-size", "1048576", path}, &stdout, &stderr)
	require.NoError(t, err)
	fi, err := os.Stat(path)
	require.NoError(t, err)
	assert.LessOrEqual(t, fi.Size(), int64(1048576))

	fsys, err := fs.Open(path)
	require.NoError(t, err)
	defer fsys.Close()
	assert.Equal(t, uint64(4096), fsys.StatFs().BlockSize)
	assert.Greater(t, fsys.StatFs().NBlocks, uint64(200))
}

func TestMkfsErrors(t *testing.T) {
	dir := t.TempDir()
	var stdout, stderr bytes.Buffer
	err := run([]string{"-bsize", "1000", filepath.Join(dir, "a.img")}, &stdout, &stderr)
	assert.True(t, errors.Is(err, common.ErrGeometry))
	err = run([]string{"-inodes", "0", filepath.Join(dir, "b.img")}, &stdout, &stderr)
	assert.True(t, errors.Is(err, common.ErrGeometry))
	err = run([]string{"-size", "100", filepath.Join(dir, "c.img")}, &stdout, &stderr)
	assert.True(t, errors.Is(err, common.ErrGeometry))
	assert.Error(t, run(nil, &stdout, &stderr))
	assert.Error(t, run([]string{"-bogus", "x.img"}, &stdout, &stderr))
}
