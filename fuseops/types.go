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

package fuseops

import "github.com/relvacode/fuse3/fusetypes"

// Entry is returned by every operation that names or creates a child inode
// (lookup, mknod, mkdir, symlink, link, create), mirroring struct
// fuse_entry_out.
type Entry struct {
	Ino        fusetypes.Ino
	Generation uint64
	Attr       fusetypes.Stat

	// EntryValid/AttrValid bound how long the kernel may cache the returned
	// name-to-inode mapping and attributes, respectively, before
	// re-validating with a fresh lookup/getattr.
	EntryValidSeconds uint64
	EntryValidNanos   uint32
	AttrValidSeconds  uint64
	AttrValidNanos    uint32
}

// --- Lookup ---

type LookupRequest struct {
	Parent fusetypes.Ino
	Name   string
}

type LookupResponse struct {
	Entry Entry
}

// --- GetAttr ---

type GetAttrRequest struct {
	Ino fusetypes.Ino
	Fh  fusetypes.Fd
}

type GetAttrResponse struct {
	Attr             fusetypes.Stat
	AttrValidSeconds uint64
	AttrValidNanos   uint32
}

// --- SetAttr ---

// SetAttrValid is a bitmask of which SetAttrRequest fields the caller
// actually supplied, matching FATTR_* in the kernel ABI.
type SetAttrValid uint32

const (
	SetAttrMode      SetAttrValid = 1 << 0
	SetAttrUid       SetAttrValid = 1 << 1
	SetAttrGid       SetAttrValid = 1 << 2
	SetAttrSize      SetAttrValid = 1 << 3
	SetAttrAtime     SetAttrValid = 1 << 4
	SetAttrMtime     SetAttrValid = 1 << 5
	SetAttrFh        SetAttrValid = 1 << 6
	SetAttrAtimeNow  SetAttrValid = 1 << 7
	SetAttrMtimeNow  SetAttrValid = 1 << 8
	SetAttrCtime     SetAttrValid = 1 << 10
)

func (v SetAttrValid) Has(bit SetAttrValid) bool { return v&bit == bit }

type SetAttrRequest struct {
	Ino   fusetypes.Ino
	Fh    fusetypes.Fd
	Valid SetAttrValid
	Attr  fusetypes.Stat
}

type SetAttrResponse struct {
	Attr             fusetypes.Stat
	AttrValidSeconds uint64
	AttrValidNanos   uint32
}

// --- Readlink ---

type ReadlinkRequest struct {
	Ino fusetypes.Ino
}

type ReadlinkResponse struct {
	Target string
}

// --- Mknod ---

type MknodRequest struct {
	Parent fusetypes.Ino
	Name   string
	Mode   fusetypes.Mode
	Rdev   fusetypes.Dev
	Umask  fusetypes.Mode
}

type MknodResponse struct {
	Entry Entry
}

// --- Mkdir ---

type MkdirRequest struct {
	Parent fusetypes.Ino
	Name   string
	Mode   fusetypes.Mode
	Umask  fusetypes.Mode
}

type MkdirResponse struct {
	Entry Entry
}

// --- Unlink / Rmdir ---

type UnlinkRequest struct {
	Parent fusetypes.Ino
	Name   string
}

type UnlinkResponse struct{}

type RmdirRequest struct {
	Parent fusetypes.Ino
	Name   string
}

type RmdirResponse struct{}

// --- Symlink ---

type SymlinkRequest struct {
	Parent fusetypes.Ino
	Name   string
	Target string
}

type SymlinkResponse struct {
	Entry Entry
}

// --- Rename ---

type RenameRequest struct {
	OldParent fusetypes.Ino
	OldName   string
	NewParent fusetypes.Ino
	NewName   string
	Flags     fusetypes.RenameFlags
}

type RenameResponse struct{}

// --- Link ---

type LinkRequest struct {
	Ino       fusetypes.Ino
	NewParent fusetypes.Ino
	NewName   string
}

type LinkResponse struct {
	Entry Entry
}

// --- Open / Create ---

type OpenRequest struct {
	Ino   fusetypes.Ino
	Flags fusetypes.Flags
}

type OpenResponse struct {
	Info fusetypes.FileInfo
}

type CreateRequest struct {
	Parent fusetypes.Ino
	Name   string
	Mode   fusetypes.Mode
	Flags  fusetypes.Flags
	Umask  fusetypes.Mode
}

type CreateResponse struct {
	Entry Entry
	Info  fusetypes.FileInfo
}

// --- Read / Write ---

type ReadRequest struct {
	Ino    fusetypes.Ino
	Fh     fusetypes.Fd
	Offset int64
	Size   int64
}

type ReadResponse struct {
	Data []byte
}

type WriteRequest struct {
	Ino    fusetypes.Ino
	Fh     fusetypes.Fd
	Offset int64
	Data   []byte
}

type WriteResponse struct {
	Size uint32
}

// --- Flush / Release / Fsync ---

type FlushRequest struct {
	Ino fusetypes.Ino
	Fh  fusetypes.Fd
}

type FlushResponse struct{}

type ReleaseRequest struct {
	Ino   fusetypes.Ino
	Fh    fusetypes.Fd
	Flags fusetypes.Flags
}

type ReleaseResponse struct{}

type FsyncRequest struct {
	Ino        fusetypes.Ino
	Fh         fusetypes.Fd
	DataSyncOnly bool
}

type FsyncResponse struct{}

// --- OpenDir / ReadDir / ReleaseDir / FsyncDir ---

type OpenDirRequest struct {
	Ino   fusetypes.Ino
	Flags fusetypes.Flags
}

type OpenDirResponse struct {
	Info fusetypes.FileInfo
}

type ReadDirRequest struct {
	Ino    fusetypes.Ino
	Fh     fusetypes.Fd
	Offset uint64
	// Plus indicates a READDIRPLUS request: the handler may return one
	// Stat per entry in ReadDirResponse.Attrs alongside the name/ino/type.
	Plus bool
}

type ReadDirResponse struct {
	Entries []fusetypes.Dirent
	// Attrs, when Plus was requested, holds one Stat per entry in Entries,
	// index-aligned; nil when the handler did not populate readdirplus
	// attributes.
	Attrs []fusetypes.Stat
}

type ReleaseDirRequest struct {
	Ino fusetypes.Ino
	Fh  fusetypes.Fd
}

type ReleaseDirResponse struct{}

type FsyncDirRequest struct {
	Ino          fusetypes.Ino
	Fh           fusetypes.Fd
	DataSyncOnly bool
}

type FsyncDirResponse struct{}

// --- Statfs ---

type StatfsRequest struct {
	Ino fusetypes.Ino
}

type StatfsResponse struct {
	Statvfs fusetypes.Statvfs
}

// --- xattr ---

type SetXattrRequest struct {
	Ino   fusetypes.Ino
	Name  string
	Value []byte
	Flags fusetypes.XattrFlags
}

type SetXattrResponse struct{}

type GetXattrRequest struct {
	Ino fusetypes.Ino
	Name string
	// Size is the buffer size the caller offered; 0 means "tell me the
	// size", matching getxattr(2)'s size-probe convention.
	Size uint32
}

type GetXattrResponse struct {
	Value []byte
}

type ListXattrRequest struct {
	Ino  fusetypes.Ino
	Size uint32
}

type ListXattrResponse struct {
	// Names is the NUL-separated list of attribute names, pre-join.
	Names []string
}

type RemoveXattrRequest struct {
	Ino  fusetypes.Ino
	Name string
}

type RemoveXattrResponse struct{}

// --- Access ---

type AccessRequest struct {
	Ino  fusetypes.Ino
	Mask fusetypes.AccessMask
}

type AccessResponse struct{}

// --- CopyFileRange ---

type CopyFileRangeRequest struct {
	InIno   fusetypes.Ino
	InFh    fusetypes.Fd
	InOff   uint64
	OutIno  fusetypes.Ino
	OutFh   fusetypes.Fd
	OutOff  uint64
	Len     uint64
	Flags   uint32
}

type CopyFileRangeResponse struct {
	Copied uint64
}

// --- Lseek ---

type LseekRequest struct {
	Ino    fusetypes.Ino
	Fh     fusetypes.Fd
	Offset int64
	Whence fusetypes.Whence
}

type LseekResponse struct {
	Offset int64
}
