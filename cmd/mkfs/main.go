// mkfs formats a disk image file.
//
// Usage:
//
//	mkfs [-bsize N] [-blocks N] [-inodes N] [-size BYTES] [-debug L] image
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/disk"
	"github.com/mit-pdos/imgfs/super"
	"github.com/mit-pdos/imgfs/util"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "mkfs: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("mkfs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	bsz := flags.Uint64("bsize", common.DEFBLOCKSIZE, "block size in bytes (power of two, 512-4096)")
	nblocks := flags.Uint64("blocks", 128, "number of data blocks")
	ninodes := flags.Uint64("inodes", 16, "number of inodes, the root included")
	size := flags.Uint64("size", 0, "total image size in bytes; overrides -blocks")
	flags.Uint64Var(&util.Debug, "debug", 0, "debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() != 1 {
		return fmt.Errorf("usage: mkfs [flags] image")
	}
	path := flags.Arg(0)

	if *size != 0 {
		n, err := super.FitBlocks(*bsz, *ninodes, *size)
		if err != nil {
			return err
		}
		*nblocks = n
	}
	sb, err := super.MkFsSuper(*bsz, *nblocks, *ninodes)
	if err != nil {
		return err
	}

	d, err := disk.NewFileDisk(path, *bsz, sb.ImageBlocks())
	if err != nil {
		return err
	}
	sb, err = super.Format(d, *nblocks, *ninodes)
	if err != nil {
		d.Close()
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := d.Close(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s: %d bytes, %v\n", path, sb.ImageBlocks()*sb.BlockSize, sb)
	return nil
}
