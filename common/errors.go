package common

import "errors"

var (
	ErrNotMounted        = errors.New("filesystem not mounted")
	ErrAlreadyMounted    = errors.New("an image is already mounted")
	ErrCorruptSuperblock = errors.New("corrupt superblock")
	ErrInvalidConfig     = errors.New("invalid filesystem configuration")
	ErrNotLoaded         = errors.New("bitmap not loaded")
	ErrOutOfSpace        = errors.New("no free data block")
	ErrNoFreeInode       = errors.New("inode table full")
	ErrDirectoryFull     = errors.New("directory full")
	ErrPathNotFound      = errors.New("no such file or directory")
	ErrIndexOutOfRange   = errors.New("index out of range")
	ErrExists            = errors.New("file exists")
	ErrNotDirectory      = errors.New("not a directory")
	ErrIsDirectory       = errors.New("is a directory")
	ErrNotEmpty          = errors.New("directory not empty")
	ErrInvalidPath       = errors.New("invalid path")
	ErrIO                = errors.New("i/o error")
	ErrNotFound          = errors.New("image not found")
	ErrCreateFailed      = errors.New("cannot create image")
)
