// Copyright 2015 Google Inc. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package fusetypes holds the branded wire types shared by every other
// package in this module: inode and handle identifiers, mode and flag
// bitfields, and the composite stat/statvfs/dirent/file-info records.
//
// Each numeric identity gets its own named type (Ino, Fd, Mode, Flags, Uid,
// Gid, Dev) so that, for example, passing a Mode where a Flags is expected
// is a compile error rather than a silent bug -- the same nominal-typing
// strategy the teacher uses for InodeID and HandleID in file_system.go.
package fusetypes

import "fmt"

// Ino uniquely identifies a file-system object for the lifetime of this
// mount. Allocated by the consumer filesystem; the core never mints one.
//
// INVARIANT: Ino > 0 for any inode that has been returned to the kernel.
type Ino uint64

// RootIno is the distinguished inode identifying the mount point itself.
// Unlike every other Ino, the kernel may reference it without the file
// system ever having returned it from a prior call.
const RootIno Ino = 1

func (i Ino) String() string { return fmt.Sprintf("ino=%d", uint64(i)) }

// Fd is an opaque per-open file or directory handle, consumer-assigned at
// open/create/opendir and threaded through subsequent operations on that
// open instance until release/releasedir.
type Fd uint64

func (h Fd) String() string { return fmt.Sprintf("fh=%d", uint64(h)) }

// Uid is a POSIX numeric user id.
type Uid uint32

// Gid is a POSIX numeric group id.
type Gid uint32

// Dev is a POSIX device number (as produced by makedev(3)), used for
// mknod of block/character special files and populated in Stat.Rdev.
type Dev uint64

// Mode is the 32-bit bitfield combining POSIX file-type bits (high bits)
// and permission bits (9 standard + setuid/setgid/sticky). Encodings match
// the canonical S_IF*/S_I* numeric values.
type Mode uint32

// File-type bits, matching S_IFMT and friends.
const (
	ModeTypeMask Mode = 0o170000
	ModeSocket   Mode = 0o140000
	ModeSymlink  Mode = 0o120000
	ModeRegular  Mode = 0o100000
	ModeBlock    Mode = 0o060000
	ModeDir      Mode = 0o040000
	ModeChar     Mode = 0o020000
	ModeFIFO     Mode = 0o010000
)

// Permission and special bits.
const (
	ModeSetuid Mode = 0o4000
	ModeSetgid Mode = 0o2000
	ModeSticky Mode = 0o1000
	ModePerm   Mode = 0o0777
)

// Type extracts the file-type bits.
func (m Mode) Type() Mode { return m & ModeTypeMask }

// Perm extracts the permission bits (including setuid/setgid/sticky).
func (m Mode) Perm() Mode { return m &^ ModeTypeMask }

// IsDir reports whether m describes a directory.
func (m Mode) IsDir() bool { return m.Type() == ModeDir }

// IsRegular reports whether m describes a regular file.
func (m Mode) IsRegular() bool { return m.Type() == ModeRegular }

// IsSymlink reports whether m describes a symbolic link.
func (m Mode) IsSymlink() bool { return m.Type() == ModeSymlink }

func (m Mode) String() string {
	return fmt.Sprintf("mode=0%o", uint32(m))
}

// Flags is the 32-bit open-flag bitfield passed to open/create.
type Flags uint32

// Access-mode and open-behavior flags, matching the canonical O_* values.
const (
	ORDONLY    Flags = 0
	OWRONLY    Flags = 0o1
	ORDWR      Flags = 0o2
	OAccmode   Flags = 0o3
	OCREAT     Flags = 0o100
	OEXCL      Flags = 0o200
	ONOCTTY    Flags = 0o400
	OTRUNC     Flags = 0o1000
	OAPPEND    Flags = 0o2000
	ONONBLOCK  Flags = 0o4000
	OSYNC      Flags = 0o4010000
	ODIRECT    Flags = 0o40000
	ODIRECTORY Flags = 0o200000
	ONOFOLLOW  Flags = 0o400000
)

// Accmode extracts the access-mode bits (O_RDONLY/O_WRONLY/O_RDWR).
func (f Flags) Accmode() Flags { return f & OAccmode }

// Has reports whether all bits in want are set in f.
func (f Flags) Has(want Flags) bool { return f&want == want }

func (f Flags) String() string { return fmt.Sprintf("flags=0%o", uint32(f)) }

// RenameFlags is the flags argument accepted by the rename operation.
type RenameFlags uint32

const (
	RenameNoReplace RenameFlags = 1
	RenameExchange  RenameFlags = 2
)

// AccessMask is the probe bitfield accepted by the access operation.
type AccessMask uint32

const (
	FOK AccessMask = 0
	XOK AccessMask = 1
	WOK AccessMask = 2
	ROK AccessMask = 4
)

// XattrFlags controls create-vs-replace semantics for setxattr.
type XattrFlags uint32

const (
	XattrDefault XattrFlags = 0
	XattrCreate  XattrFlags = 1
	XattrReplace XattrFlags = 2
)

// Whence selects the seek origin for lseek.
type Whence int32

const (
	SeekSet  Whence = 0
	SeekCur  Whence = 1
	SeekEnd  Whence = 2
	SeekData Whence = 3
	SeekHole Whence = 4
)
