package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/super"
)

func mkImage(t *testing.T) string {
	path := filepath.Join(t.TempDir(), "disk.img")
	sb, err := super.MkFsSuper(512, 64, 16)
	require.NoError(t, err)
	d, err := disk.NewFileDisk(path, 512, sb.ImageBlocks())
	require.NoError(t, err)
	_, err = super.Format(d, 64, 16)
	require.NoError(t, err)
	require.NoError(t, d.Close())
	return path
}

type result struct {
	stdout string
	stderr string
	err    error
}

func imgfs(image string, stdin string, args ...string) result {
	var stdout, stderr bytes.Buffer
	err := run(append([]string{image}, args...), strings.NewReader(stdin), &stdout, &stderr)
	return result{stdout.String(), stderr.String(), err}
}

func TestCommands(t *testing.T) {
	img := mkImage(t)
	require.NoError(t, imgfs(img, "", "mkdir", "/docs").err)
	require.NoError(t, imgfs(img, "", "create", "/docs/a.txt").err)

	r := imgfs(img, "hello, image", "write", "/docs/a.txt", "0")
	require.NoError(t, r.err)
	assert.Equal(t, "wrote 12 bytes\n", r.stdout)

	r = imgfs(img, "", "read", "/docs/a.txt")
	require.NoError(t, r.err)
	assert.Equal(t, "hello, image", r.stdout)
	r = imgfs(img, "", "read", "/docs/a.txt", "7")
	require.NoError(t, r.err)
	assert.Equal(t, "image", r.stdout)
	r = imgfs(img, "", "read", "/docs/a.txt", "0", "5")
	require.NoError(t, r.err)
	assert.Equal(t, "hello", r.stdout)

	r = imgfs(img, "", "ls")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "docs")
	assert.Contains(t, r.stdout, "dir")
	r = imgfs(img, "", "ls", "/docs")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "a.txt")

	r = imgfs(img, "", "stat", "/docs/a.txt")
	require.NoError(t, r.err)
	assert.Equal(t, "inode 2 kind file size 12 blocks 1\n", r.stdout)

	require.NoError(t, imgfs(img, "", "truncate", "/docs/a.txt", "5").err)
	r = imgfs(img, "", "read", "/docs/a.txt")
	assert.Equal(t, "hello", r.stdout)

	r = imgfs(img, "", "df")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "blocks 64 used 3 free 61")
	assert.Contains(t, r.stdout, "inodes 16 used 3 free 13")

	require.NoError(t, imgfs(img, "", "rm", "/docs/a.txt").err)
	require.NoError(t, imgfs(img, "", "rmdir", "/docs").err)
	r = imgfs(img, "", "check")
	require.NoError(t, r.err)
	assert.Equal(t, "ok\n", r.stdout)
	r = imgfs(img, "", "ls")
	require.NoError(t, r.err)
	assert.Empty(t, r.stdout)
}

func TestImportExport(t *testing.T) {
	img := mkImage(t)
	dir := t.TempDir()
	host := filepath.Join(dir, "in.bin")
	data := bytes.Repeat([]byte("0123456789"), 900)
	require.NoError(t, os.WriteFile(host, data, 0644))

	r := imgfs(img, "", "import", host, "/blob")
	require.NoError(t, r.err)
	assert.Equal(t, "imported 9000 bytes\n", r.stdout)
	// importing again replaces the contents
	require.NoError(t, os.WriteFile(host, data[:100], 0644))
	require.NoError(t, imgfs(img, "", "import", host, "/blob").err)

	out := filepath.Join(dir, "out.bin")
	require.NoError(t, imgfs(img, "", "export", "/blob", out).err)
	got, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, data[:100], got)
	assert.NoError(t, imgfs(img, "", "check").err)
}

func TestErrors(t *testing.T) {
	img := mkImage(t)
	r := imgfs(img, "", "read", "/missing")
	assert.True(t, errors.Is(r.err, common.ErrNotFound))
	r = imgfs(img, "", "rmdir", "/")
	assert.True(t, errors.Is(r.err, common.ErrInvalidName))
	r = imgfs(img, "", "read", "/")
	assert.True(t, errors.Is(r.err, common.ErrIsDirectory))

	require.NoError(t, imgfs(img, "", "create", "/f").err)
	r = imgfs(img, "", "create", "/f")
	assert.True(t, errors.Is(r.err, common.ErrDuplicateName))
	r = imgfs(img, "x", "write", "/f", "10")
	assert.True(t, errors.Is(r.err, common.ErrOutOfRange))
	r = imgfs(img, "", "write", "/f", "ten")
	assert.ErrorContains(t, r.err, "bad offset")

	assert.ErrorContains(t, imgfs(img, "", "frob").err, "unknown command")
	assert.ErrorContains(t, imgfs(img, "", "mkdir").err, "usage: mkdir path")
	assert.Error(t, imgfs(img, "").err)
	r = imgfs(filepath.Join(t.TempDir(), "none.img"), "", "ls")
	assert.Error(t, r.err)
}

func TestShell(t *testing.T) {
	img := mkImage(t)
	script := strings.Join([]string{
		"mkdir /d",
		"create /d/f",
		"write /d/f 0 hello world",
		"",
		"read /d/f",
		"bogus",
		"write /d/f 0",
		"ls /d",
		"help",
		"exit",
		"rm /d/f",
	}, "\n")
	r := imgfs(img, script, "shell")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "wrote 11 bytes")
	assert.Contains(t, r.stdout, "hello world")
	assert.Contains(t, r.stdout, "f\n")
	assert.Contains(t, r.stdout, "truncate path size")
	assert.Contains(t, r.stderr, "imgfs: unknown command \"bogus\"")
	assert.Contains(t, r.stderr, "imgfs: usage: write path offset")

	// nothing after exit ran
	r = imgfs(img, "", "stat", "/d/f")
	require.NoError(t, r.err)
	assert.Contains(t, r.stdout, "size 11")

	r = imgfs(img, "ls\n", "shell")
	require.NoError(t, r.err, "end of input ends the shell")
}

func TestSplitLine(t *testing.T) {
	assert.Equal(t, []string{"write", "/f", "0", "a  b\tc "},
		splitLine("  write /f\t0 a  b\tc ", 4))
	assert.Equal(t, []string{"write", "/f", "0"}, splitLine("write /f 0", 4))
	assert.Equal(t, []string{"write", "/f", "0"}, splitLine("write /f 0   ", 4))
	assert.Empty(t, splitLine("   ", 4))
}

func TestShellWriteKeepsSpacing(t *testing.T) {
	img := mkImage(t)
	script := "create /f\nwrite /f 0 two  spaces\tand a tab\nexit\n"
	r := imgfs(img, script, "shell")
	require.NoError(t, r.err)
	assert.Empty(t, r.stderr)

	r = imgfs(img, "", "read", "/f")
	require.NoError(t, r.err)
	assert.Equal(t, "two  spaces\tand a tab", r.stdout)
}
