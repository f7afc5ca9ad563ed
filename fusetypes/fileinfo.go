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

// FileInfo is created at open/create/opendir and threaded through every
// subsequent operation on that same open instance (read, write, flush,
// release, fsync, ...). It corresponds to struct fuse_file_info in the
// kernel ABI.
type FileInfo struct {
	Fh    Fd
	Flags Flags

	// DirectIO disables the kernel page cache for this open instance.
	DirectIO bool

	// KeepCache tells the kernel it may keep cached pages for this inode
	// across opens.
	KeepCache bool

	// FlushOnClose records whether the handler wants FLUSH on close for
	// this handle (default true). The kernel adapter does not encode it in
	// open replies, so it does not change whether the kernel sends FLUSH.
	FlushOnClose bool

	// Nonseekable marks the handle as not supporting lseek, e.g. for FIFOs
	// exposed through the file system.
	Nonseekable bool

	// CacheReaddir allows the kernel to cache directory entries returned on
	// this handle between calls.
	CacheReaddir bool

	// ParallelDirectWrites allows the kernel to issue concurrent direct-IO
	// writes against this handle instead of serializing them.
	ParallelDirectWrites bool
}

// NewFileInfo returns a FileInfo with FlushOnClose defaulted to true,
// matching the kernel's own default for fuse_file_info::flush.
func NewFileInfo(fh Fd, flags Flags) FileInfo {
	return FileInfo{Fh: fh, Flags: flags, FlushOnClose: true}
}
