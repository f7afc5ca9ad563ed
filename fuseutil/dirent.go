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

// Package fuseutil holds small, allocation-free wire-format helpers shared
// by the kernel adapter and its tests: encoding directory entries into the
// buffer format the kernel expects from a readdir/readdirplus reply, and
// paginating a handler's full entry list across however many such buffers
// the kernel is willing to accept per call.
package fuseutil

import (
	"unsafe"

	"github.com/relvacode/fuse3/fusetypes"
)

const direntAlignment = 8
const direntHeaderSize = 8 + 8 + 4 + 4 // ino + off + namelen + type

// WriteDirent writes one directory entry into buf in the layout of struct
// fuse_dirent (host order, FUSE_DIRENT_ALIGN = 8), returning the number of
// bytes written, or zero if the entry would not fit in the remaining space.
func WriteDirent(buf []byte, d fusetypes.Dirent) (n int) {
	type fuseDirent struct {
		ino     uint64
		off     uint64
		namelen uint32
		type_   uint32
		name    [0]byte
	}

	padLen := padding(len(d.Name))
	totalLen := direntHeaderSize + len(d.Name) + padLen
	if totalLen > len(buf) {
		return 0
	}

	de := fuseDirent{
		ino:     uint64(d.Ino),
		off:     d.Offset,
		namelen: uint32(len(d.Name)),
		type_:   uint32(d.Type),
	}

	n += copy(buf[n:], (*[direntHeaderSize]byte)(unsafe.Pointer(&de))[:])
	n += copy(buf[n:], d.Name)
	if padLen != 0 {
		var zero [direntAlignment]byte
		n += copy(buf[n:], zero[:padLen])
	}

	return n
}

// direntPlusHeaderSize is sizeof(struct fuse_entry_out), which precedes the
// fuse_dirent payload in a readdirplus reply: nodeid, generation,
// entry_valid and attr_valid (four uint64s), entry_valid_nsec and
// attr_valid_nsec (two uint32s), then the embedded attr record.
const direntPlusHeaderSize = 8 + 8 + 8 + 8 + 4 + 4 + attrOutSize

// attrOutSize is sizeof(struct fuse_attr), the embedded attribute record
// inside fuse_entry_out; kept local to this file since the kernel package
// owns the canonical struct fuse_attr layout and this file only needs its
// size to reserve room in the entry header.
const attrOutSize = 8 + 8 + 8 + 8 + 8 + 8 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4 + 4

// WriteDirentPlus writes one fuse_direntplus record (a fuse_entry_out
// followed by a fuse_dirent, per FUSE_READDIRPLUS), using encode to fill
// the entry_out bytes so this package does not need to depend on the
// kernel wire-struct definitions directly. Returns 0 if the record would
// not fit.
func WriteDirentPlus(buf []byte, d fusetypes.Dirent, entryOut []byte) (n int) {
	if len(entryOut) != direntPlusHeaderSize {
		return 0
	}

	padLen := padding(len(d.Name))
	totalLen := len(entryOut) + direntHeaderSize + len(d.Name) + padLen
	if totalLen > len(buf) {
		return 0
	}

	n += copy(buf[n:], entryOut)
	n += WriteDirent(buf[n:], d)
	return n
}

func padding(nameLen int) int {
	if nameLen%direntAlignment == 0 {
		return 0
	}
	return direntAlignment - (nameLen % direntAlignment)
}

// Page splits entries into consecutive buffers of at most bufSize bytes
// each, in the manner spec.md §4.4's readdir pagination algorithm
// describes: entries are packed greedily in order, an entry that does not
// fit ends the current page without being dropped or split, and an entry
// larger than an empty page is itself an error (the kernel's readdir
// buffer is always large enough for one max-length name, so this only
// happens if bufSize is misconfigured).
func Page(entries []fusetypes.Dirent, bufSize int) (pages [][]byte, err error) {
	var cur []byte
	for _, d := range entries {
		if cur == nil {
			cur = make([]byte, 0, bufSize)
		}

		tmp := make([]byte, bufSize)
		n := WriteDirent(tmp, d)
		if n == 0 {
			if len(cur) == 0 {
				return nil, errDirentTooLarge
			}
			pages = append(pages, cur)
			cur = make([]byte, 0, bufSize)
			n = WriteDirent(tmp, d)
			if n == 0 {
				return nil, errDirentTooLarge
			}
		}

		cur = append(cur, tmp[:n]...)
	}

	if len(cur) > 0 {
		pages = append(pages, cur)
	}

	return pages, nil
}

var errDirentTooLarge = direntTooLargeError{}

type direntTooLargeError struct{}

func (direntTooLargeError) Error() string {
	return "fuseutil: directory entry too large for the configured buffer size"
}
