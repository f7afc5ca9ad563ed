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

package fusetypes

import "github.com/relvacode/fuse3/timespec"

// Stat mirrors struct stat (cf. `man 2 stat`), with the timestamp fields
// stored as timespec.Timespec rather than time.Time so wire serialization
// in the kernel package never loses the sub-second precision the kernel
// actually asked for.
type Stat struct {
	Ino     Ino
	Mode    Mode
	Nlink   uint64
	Uid     Uid
	Gid     Gid
	Rdev    Dev
	Size    uint64
	Blksize uint32
	Blocks  uint64

	Atime timespec.Timespec
	Mtime timespec.Timespec
	Ctime timespec.Timespec

	// Birthtime is optional; a zero Timespec means the handler did not
	// supply one. The kernel adapter does not encode Birthtime in its
	// attribute replies.
	Birthtime timespec.Timespec
}

// Statvfs mirrors struct statvfs (cf. `man 2 statvfs`). All capacity
// fields are 64-bit per spec.md §3.
type Statvfs struct {
	Bsize   uint32
	Frsize  uint32
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Favail  uint64
	Fsid    uint64
	Flag    uint32
	Namemax uint32
}

// RequestContext carries the identity of the syscalling process, populated
// by the kernel adapter from the kernel request header and immutable for
// the lifetime of one request.
type RequestContext struct {
	Uid   Uid
	Gid   Gid
	Pid   int32
	Umask Mode
}
