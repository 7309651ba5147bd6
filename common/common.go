package common

const (
	MAGIC uint64 = 0x73666d69 // "imfs"

	SUPERSZ  uint64 = 128 // on-disk superblock record
	INODESZ  uint64 = 128 // on-disk inode record
	NDIRECT  uint64 = 12
	DIRENTSZ uint64 = 32
	BNUMSZ   uint64 = 8 // an on-disk block pointer

	MAXNAMELEN = DIRENTSZ - 8

	MINBLOCKSIZE uint64 = 512
	MAXBLOCKSIZE uint64 = 4096
	DEFBLOCKSIZE uint64 = 1024

	// Upper bound on inode and data block counts, keeps every offset
	// computation well inside 64 bits.
	MAXCOUNT uint64 = 1 << 32
)

type Inum uint64
type Bnum = uint64

const (
	ROOTINUM Inum = 0
	NULLBNUM Bnum = 0
)

// Kind tags an inode.
type Kind uint64

const (
	KindFree Kind = iota
	KindFile
	KindDir
)

func (k Kind) String() string {
	switch k {
	case KindFree:
		return "free"
	case KindFile:
		return "file"
	case KindDir:
		return "dir"
	}
	return "invalid"
}

func (k Kind) Valid() bool {
	return k <= KindDir
}
