package fs

import (
	"errors"
	"fmt"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/util"
)

// Check verifies the image against its invariants:
//
//   - every live inode is reachable from exactly one directory entry (the
//     root from none), and the inode bitmap marks exactly the live inodes;
//   - free inodes are all zero;
//   - every block pointer lies in the data region, no block has two owners,
//     and the data bitmap marks exactly the referenced blocks;
//   - each inode maps every block below its size; directory sizes are
//     whole entries;
//   - the superblock free counts match the bitmaps.
//
// It returns nil or an ErrCorruptImage listing every problem found.
func (fs *Fs) Check() error {
	var problems []error
	report := func(format string, a ...interface{}) {
		problems = append(problems, fmt.Errorf(format, a...))
	}

	refs := make(map[common.Inum]int)
	fs.checkTree(common.ROOTINUM, refs, make(map[common.Inum]bool), report)

	owner := make(map[common.Bnum]common.Inum)
	bsz := fs.bsz()
	for i := uint64(0); i < fs.ibitmap.Len(); i++ {
		inum := common.Inum(i)
		ip, err := fs.readInode(inum)
		if err != nil {
			report("inode %d: %v", inum, err)
			continue
		}
		set, _ := fs.ibitmap.IsSet(i)
		if ip.IsFree() {
			if set {
				report("inode %d: free but marked in use", inum)
			}
			if ip.HasBlocks() || ip.Size != 0 {
				report("inode %d: free but not zeroed: %v", inum, ip)
			}
			if refs[inum] > 0 {
				report("inode %d: free but linked %d times", inum, refs[inum])
			}
			continue
		}
		if !set {
			report("inode %d: live but marked free", inum)
		}
		if inum == common.ROOTINUM {
			if ip.Kind != common.KindDir {
				report("root inode is a %v", ip.Kind)
			}
			if refs[inum] != 0 {
				report("root inode linked %d times", refs[inum])
			}
		} else if refs[inum] != 1 {
			report("inode %d: linked %d times", inum, refs[inum])
		}
		if ip.Kind == common.KindDir && ip.Size%common.DIRENTSZ != 0 {
			report("directory %d: size %d not a whole number of entries", inum, ip.Size)
		}

		blocks, err := fs.inodeBlocks(ip)
		if err != nil {
			report("inode %d: %v", inum, err)
			continue
		}
		for _, bn := range blocks {
			if _, ok := fs.Super.Bnum2Data(bn); !ok {
				report("inode %d: block %d outside data region", inum, bn)
				continue
			}
			if o, ok := owner[bn]; ok {
				report("block %d: owned by inodes %d and %d", bn, o, inum)
				continue
			}
			owner[bn] = inum
		}
		for bi := uint64(0); bi < util.RoundUp(ip.Size, bsz); bi++ {
			bn, err := fs.bmap(ip, bi)
			if err != nil || bn == common.NULLBNUM {
				report("inode %d: size %d but file block %d unmapped", inum, ip.Size, bi)
				break
			}
		}
	}

	for i := uint64(0); i < fs.dbitmap.Len(); i++ {
		bn := fs.Super.Data2Bnum(i)
		set, _ := fs.dbitmap.IsSet(i)
		_, used := owner[bn]
		if set && !used {
			report("block %d: marked in use but unreferenced", bn)
		}
		if !set && used {
			report("block %d: referenced by inode %d but marked free", bn, owner[bn])
		}
	}

	if fs.Super.NFreeBlocks != fs.dbitmap.NumFree() {
		report("superblock: %d free blocks, bitmap has %d",
			fs.Super.NFreeBlocks, fs.dbitmap.NumFree())
	}
	if fs.Super.NFreeInodes != fs.ibitmap.NumFree() {
		report("superblock: %d free inodes, bitmap has %d",
			fs.Super.NFreeInodes, fs.ibitmap.NumFree())
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %d problems:\n%w", common.ErrCorruptImage,
		len(problems), errors.Join(problems...))
}

// checkTree counts directory references to each inode below dir.
func (fs *Fs) checkTree(dir common.Inum, refs map[common.Inum]int,
	seen map[common.Inum]bool, report func(string, ...interface{})) {
	if seen[dir] {
		report("directory %d: reached twice", dir)
		return
	}
	seen[dir] = true
	ents, err := fs.List(dir)
	if err != nil {
		report("directory %d: %v", dir, err)
		return
	}
	names := make(map[string]bool)
	for _, de := range ents {
		if err := checkName(de.Name); err != nil {
			report("directory %d: %v", dir, err)
		}
		if names[de.Name] {
			report("directory %d: duplicate name %q", dir, de.Name)
		}
		names[de.Name] = true
		if uint64(de.Inum) >= fs.Super.NInodes {
			report("directory %d: %q -> inode %d out of range", dir, de.Name, de.Inum)
			continue
		}
		refs[de.Inum]++
		ip, err := fs.readInode(de.Inum)
		if err != nil {
			report("directory %d: %q: %v", dir, de.Name, err)
			continue
		}
		if ip.Kind == common.KindDir && refs[de.Inum] == 1 {
			fs.checkTree(de.Inum, refs, seen, report)
		}
	}
}
