package common

import "errors"

var (
	ErrGeometry      = errors.New("invalid file system geometry")
	ErrCorruptImage  = errors.New("corrupt image")
	ErrOutOfSpace    = errors.New("no space left on device")
	ErrInvalidInode  = errors.New("invalid inode")
	ErrNotFound      = errors.New("no such file or directory")
	ErrDuplicateName = errors.New("file exists")
	ErrNotADirectory = errors.New("not a directory")
	ErrOutOfRange    = errors.New("offset out of range")
	ErrFileTooLarge  = errors.New("file too large")
	ErrDoubleFree    = errors.New("double free")
	ErrIsDirectory   = errors.New("is a directory")
	ErrNotEmpty      = errors.New("directory not empty")
	ErrNameTooLong   = errors.New("file name too long")
	ErrInvalidName   = errors.New("invalid file name")
	ErrBadBlockSize  = errors.New("unsupported block size")
)
