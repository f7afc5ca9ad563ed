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

// Package validate holds the pure, side-effect-free shape and range checks
// that fuseops wrappers run before invoking a user handler (spec.md §4.3).
// Every validator returns an errno.Error carrying EINVAL or ENAMETOOLONG;
// none of them ever reach a handler.
package validate

import (
	"strings"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
)

// MaxReadWriteSize is the largest size accepted for a single read or write
// request.
const MaxReadWriteSize = 128 << 20 // 128 MiB

// MaxNameBytes is the longest a path component may be.
const MaxNameBytes = 255

// MaxPathBytes is the longest an absolute path may be.
const MaxPathBytes = 4096

// Ino validates an inode number: it must be strictly positive.
func Ino(ino fusetypes.Ino) error {
	if ino == 0 {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// Offset validates a read/write/readdir offset: it must be non-negative,
// which the unsigned uint64 readdir offset already guarantees,
// but signed offsets (read/write) must be checked explicitly.
func Offset(off int64) error {
	if off < 0 {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// Size validates a requested read/write length: non-negative and no larger
// than MaxReadWriteSize.
func Size(size int64) error {
	if size < 0 || size > MaxReadWriteSize {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// NameOptions controls which otherwise-reserved names Name permits, since
// some operations (readdir) must be able to return "." and ".." while
// others (lookup, mkdir, unlink, ...) must never accept them as a target.
type NameOptions struct {
	AllowDotAndDotDot bool
}

// Name validates a single path component: non-empty, at most MaxNameBytes
// bytes, no NUL byte, no '/', and (unless explicitly allowed) not "." or
// "..".
func Name(name string, opts NameOptions) error {
	if len(name) == 0 {
		return errno.Error(errno.EINVAL)
	}
	if len(name) > MaxNameBytes {
		return errno.Error(errno.ENAMETOOLONG)
	}
	if strings.IndexByte(name, 0) >= 0 {
		return errno.Error(errno.EINVAL)
	}
	if strings.IndexByte(name, '/') >= 0 {
		return errno.Error(errno.EINVAL)
	}
	if !opts.AllowDotAndDotDot && (name == "." || name == "..") {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// Path validates an absolute path string: at most MaxPathBytes bytes,
// begins with '/', and contains no NUL byte.
func Path(path string) error {
	if len(path) == 0 || path[0] != '/' {
		return errno.Error(errno.EINVAL)
	}
	if len(path) > MaxPathBytes {
		return errno.Error(errno.ENAMETOOLONG)
	}
	if strings.IndexByte(path, 0) >= 0 {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// ModeOptions selects which file-type constraints Mode enforces, since
// mknod/create forbid directory bits while mkdir requires them.
type ModeOptions struct {
	ForbidDirectory  bool
	RequireDirectory bool
}

// Mode validates a mode bitfield passed to mknod/mkdir/create.
func Mode(mode fusetypes.Mode, opts ModeOptions) error {
	if opts.ForbidDirectory && mode.IsDir() {
		return errno.Error(errno.EINVAL)
	}
	if opts.RequireDirectory && !mode.IsDir() {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// RenameFlags validates the flags argument to rename: only
// RENAME_NOREPLACE and RENAME_EXCHANGE are documented, but unknown bits are
// accepted and forwarded verbatim to the handler per spec.md §4.3, so this
// only rejects the combination that is never sane: both flags set at once
// (the kernel itself refuses this with EINVAL).
func RenameFlags(flags fusetypes.RenameFlags) error {
	both := fusetypes.RenameNoReplace | fusetypes.RenameExchange
	if flags&both == both {
		return errno.Error(errno.EINVAL)
	}
	return nil
}

// RequestContext validates the per-request identity header: uid/gid must
// be representable (they already are, being unsigned) and pid must be
// strictly positive.
func RequestContext(ctx fusetypes.RequestContext) error {
	if ctx.Pid <= 0 {
		return errno.Error(errno.EINVAL)
	}
	return nil
}
