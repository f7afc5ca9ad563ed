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

// Package kernel is the adapter binding this module's dispatcher to the
// host kernel's FUSE3 low-level ABI: it owns the /dev/fuse file
// descriptor, mounts and unmounts it via fusermount3, decodes kernel
// request messages into fuseops calls, and encodes their results back
// onto the wire. Delegated by spec.md's "kernel FUSE protocol framing"
// clause to this package rather than to libfuse, since the core speaks
// the ABI directly over /dev/fuse.
package kernel

// opcode identifies the kind of request encoded in a fuse_in_header,
// matching the canonical numbering from the Linux kernel's
// include/uapi/linux/fuse.h.
type opcode uint32

const (
	opLookup      opcode = 1
	opForget      opcode = 2
	opGetattr     opcode = 3
	opSetattr     opcode = 4
	opReadlink    opcode = 5
	opSymlink     opcode = 6
	opMknod       opcode = 8
	opMkdir       opcode = 9
	opUnlink      opcode = 10
	opRmdir       opcode = 11
	opRename      opcode = 12
	opLink        opcode = 13
	opOpen        opcode = 14
	opRead        opcode = 15
	opWrite       opcode = 16
	opStatfs      opcode = 17
	opRelease     opcode = 18
	opFsync       opcode = 20
	opSetxattr    opcode = 21
	opGetxattr    opcode = 22
	opListxattr   opcode = 23
	opRemovexattr opcode = 24
	opFlush       opcode = 25
	opInit        opcode = 26
	opOpendir     opcode = 27
	opReaddir     opcode = 28
	opReleasedir  opcode = 29
	opFsyncdir    opcode = 30
	opAccess      opcode = 34
	opCreate      opcode = 35
	opInterrupt   opcode = 36
	opDestroy     opcode = 38
	opRename2     opcode = 45
	opCopyFileRange opcode = 47
	opLseek       opcode = 46
)

func (o opcode) String() string {
	switch o {
	case opLookup:
		return "LOOKUP"
	case opForget:
		return "FORGET"
	case opGetattr:
		return "GETATTR"
	case opSetattr:
		return "SETATTR"
	case opReadlink:
		return "READLINK"
	case opSymlink:
		return "SYMLINK"
	case opMknod:
		return "MKNOD"
	case opMkdir:
		return "MKDIR"
	case opUnlink:
		return "UNLINK"
	case opRmdir:
		return "RMDIR"
	case opRename, opRename2:
		return "RENAME"
	case opLink:
		return "LINK"
	case opOpen:
		return "OPEN"
	case opRead:
		return "READ"
	case opWrite:
		return "WRITE"
	case opStatfs:
		return "STATFS"
	case opRelease:
		return "RELEASE"
	case opFsync:
		return "FSYNC"
	case opSetxattr:
		return "SETXATTR"
	case opGetxattr:
		return "GETXATTR"
	case opListxattr:
		return "LISTXATTR"
	case opRemovexattr:
		return "REMOVEXATTR"
	case opFlush:
		return "FLUSH"
	case opInit:
		return "INIT"
	case opOpendir:
		return "OPENDIR"
	case opReaddir:
		return "READDIR"
	case opReleasedir:
		return "RELEASEDIR"
	case opFsyncdir:
		return "FSYNCDIR"
	case opAccess:
		return "ACCESS"
	case opCreate:
		return "CREATE"
	case opInterrupt:
		return "INTERRUPT"
	case opDestroy:
		return "DESTROY"
	case opCopyFileRange:
		return "COPY_FILE_RANGE"
	case opLseek:
		return "LSEEK"
	default:
		return "UNKNOWN"
	}
}

// Protocol version this adapter negotiates, matching spec.md §6's
// "Compatibility target: FUSE protocol >= 7.27" and capped at a version
// this adapter's wire structs are known to match.
const (
	protoVersionMajor = 7
	protoVersionMinor = 31
	protoVersionMinMinor = 27
)

// Flag bits carried in read, getattr, setattr (FATTR_*) and release request
// bodies, plus the INIT flag this adapter echoes back for readdirplus.
const (
	readFlagLockOwner uint32 = 1 << 1

	getattrFlagFh uint32 = 1 << 0

	setattrMode      uint32 = 1 << 0
	setattrUID       uint32 = 1 << 1
	setattrGID       uint32 = 1 << 2
	setattrSize      uint32 = 1 << 3
	setattrAtime     uint32 = 1 << 4
	setattrMtime     uint32 = 1 << 5
	setattrFh        uint32 = 1 << 6
	setattrAtimeNow  uint32 = 1 << 7
	setattrMtimeNow  uint32 = 1 << 8
	setattrCtime     uint32 = 1 << 10

	releaseFlagFlush uint32 = 1 << 0

	initFlagReaddirplus uint32 = 1 << 13
)
