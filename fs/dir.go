package fs

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/tchajed/marshal"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/inode"
	"github.com/mit-pdos/imgfs/util"
)

//
// Directories are files of DIRENTSZ-byte entries, packed densely in
// [0, size): name (MAXNAMELEN bytes, NUL padded) then the inode number.
// Removal moves the last entry into the freed slot.
//

type Dirent struct {
	Name string
	Inum common.Inum
}

func encodeDirent(de Dirent) []byte {
	b := make([]byte, common.DIRENTSZ)
	copy(b, de.Name)
	enc := marshal.NewEnc(8)
	enc.PutInt(uint64(de.Inum))
	copy(b[common.MAXNAMELEN:], enc.Finish())
	return b
}

func decodeDirent(b []byte) Dirent {
	name := b[:common.MAXNAMELEN]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	dec := marshal.NewDec(b[common.MAXNAMELEN:common.DIRENTSZ])
	return Dirent{Name: string(name), Inum: common.Inum(dec.GetInt())}
}

func checkName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, "/\x00") {
		return fmt.Errorf("%q: %w", name, common.ErrInvalidName)
	}
	if uint64(len(name)) > common.MAXNAMELEN {
		return fmt.Errorf("%q: %w", name, common.ErrNameTooLong)
	}
	return nil
}

// getDir reads inum and checks that it is a directory.
func (fs *Fs) getDir(inum common.Inum) (*inode.Inode, error) {
	ip, err := fs.getInode(inum)
	if err != nil {
		return nil, err
	}
	if ip.Kind != common.KindDir {
		return nil, fmt.Errorf("inode %d: %w", inum, common.ErrNotADirectory)
	}
	if ip.Size%common.DIRENTSZ != 0 {
		return nil, fmt.Errorf("%w: directory %d has size %d",
			common.ErrCorruptImage, inum, ip.Size)
	}
	return ip, nil
}

// DirIter walks the entries of a directory one block at a time. It sees the
// directory as it was when the iterator was created or last Reset.
type DirIter struct {
	fs   *Fs
	dir  common.Inum
	ip   *inode.Inode
	pos  uint64
	blk  []byte // entries of the block containing pos
	boff uint64 // byte offset of blk in the directory
	cur  Dirent
	err  error
}

// Entries returns an iterator over the live entries of dir.
func (fs *Fs) Entries(dir common.Inum) *DirIter {
	it := &DirIter{fs: fs, dir: dir}
	it.Reset()
	return it
}

// Reset rewinds the iterator, rereading the directory inode.
func (it *DirIter) Reset() {
	it.ip, it.err = it.fs.getDir(it.dir)
	it.pos = 0
	it.blk = nil
	it.cur = Dirent{}
}

func (it *DirIter) Next() bool {
	if it.err != nil || it.pos >= it.ip.Size {
		return false
	}
	bsz := it.fs.bsz()
	if it.blk == nil || it.pos >= it.boff+uint64(len(it.blk)) {
		it.boff = it.pos - it.pos%bsz
		it.blk, it.err = it.fs.readAt(it.ip, it.boff, bsz)
		if it.err != nil {
			return false
		}
	}
	off := it.pos - it.boff
	it.cur = decodeDirent(it.blk[off : off+common.DIRENTSZ])
	it.pos += common.DIRENTSZ
	return true
}

func (it *DirIter) Entry() Dirent {
	return it.cur
}

// Offset is the byte offset of the current entry in the directory.
func (it *DirIter) Offset() uint64 {
	return it.pos - common.DIRENTSZ
}

func (it *DirIter) Err() error {
	return it.err
}

func (fs *Fs) List(dir common.Inum) ([]Dirent, error) {
	var ents []Dirent
	it := fs.Entries(dir)
	for it.Next() {
		ents = append(ents, it.Entry())
	}
	return ents, it.Err()
}

// find returns the inode number and byte offset of name in dir.
func (fs *Fs) find(dir common.Inum, name string) (common.Inum, uint64, error) {
	it := fs.Entries(dir)
	for it.Next() {
		if it.Entry().Name == name {
			return it.Entry().Inum, it.Offset(), nil
		}
	}
	if it.Err() != nil {
		return 0, 0, it.Err()
	}
	return 0, 0, fmt.Errorf("%q: %w", name, common.ErrNotFound)
}

func (fs *Fs) Lookup(dir common.Inum, name string) (common.Inum, error) {
	inum, _, err := fs.find(dir, name)
	return inum, err
}

// Insert adds the entry name -> inum to dir, growing dir by a block when its
// last block is full.
func (fs *Fs) Insert(dir common.Inum, name string, inum common.Inum) error {
	if err := checkName(name); err != nil {
		return err
	}
	ip, err := fs.getDir(dir)
	if err != nil {
		return err
	}
	if _, _, err := fs.find(dir, name); err == nil {
		return fmt.Errorf("%q: %w", name, common.ErrDuplicateName)
	} else if !isNotFound(err) {
		return err
	}
	_, err = fs.writeAt(dir, ip, ip.Size, encodeDirent(Dirent{Name: name, Inum: inum}))
	if err != nil {
		return fmt.Errorf("insert %q: %w", name, err)
	}
	util.DPrintf(3, "Insert: dir %d %q -> %d\n", dir, name, inum)
	return nil
}

// Remove deletes the entry name from dir. The last entry takes its slot
// and a trailing block left empty is released; the first block stays.
func (fs *Fs) Remove(dir common.Inum, name string) error {
	_, off, err := fs.find(dir, name)
	if err != nil {
		return err
	}
	ip, err := fs.getDir(dir)
	if err != nil {
		return err
	}
	last := ip.Size - common.DIRENTSZ
	if off != last {
		b, err := fs.readAt(ip, last, common.DIRENTSZ)
		if err != nil {
			return err
		}
		if _, err := fs.writeAt(dir, ip, off, b); err != nil {
			return err
		}
	}
	util.DPrintf(3, "Remove: dir %d %q\n", dir, name)
	return fs.shrink(dir, ip, last, 1)
}
