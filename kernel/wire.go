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

package kernel

import (
	"encoding/binary"

	"github.com/relvacode/fuse3/fusetypes"
)

// inHeader is the fixed 40-byte header prefixing every kernel request,
// matching struct fuse_in_header.
type inHeader struct {
	Len    uint32
	Opcode opcode
	Unique uint64
	Nodeid uint64
	Uid    uint32
	Gid    uint32
	Pid    uint32
	_      uint32 // padding
}

const inHeaderSize = 40

func decodeInHeader(b []byte) (inHeader, error) {
	if len(b) < inHeaderSize {
		return inHeader{}, errShortMessage
	}
	o := binary.LittleEndian
	return inHeader{
		Len:    o.Uint32(b[0:4]),
		Opcode: opcode(o.Uint32(b[4:8])),
		Unique: o.Uint64(b[8:16]),
		Nodeid: o.Uint64(b[16:24]),
		Uid:    o.Uint32(b[24:28]),
		Gid:    o.Uint32(b[28:32]),
		Pid:    o.Uint32(b[32:36]),
	}, nil
}

// outHeader is the fixed 16-byte header prefixing every reply, matching
// struct fuse_out_header.
type outHeader struct {
	Len    uint32
	Error  int32
	Unique uint64
}

const outHeaderSize = 16

func (h outHeader) encode() []byte {
	b := make([]byte, outHeaderSize)
	o := binary.LittleEndian
	o.PutUint32(b[0:4], h.Len)
	o.PutUint32(b[4:8], uint32(h.Error))
	o.PutUint64(b[8:16], h.Unique)
	return b
}

var errShortMessage = shortMessageError{}

type shortMessageError struct{}

func (shortMessageError) Error() string { return "kernel: message shorter than its fixed header" }

// a little-endian byte writer used to build reply bodies field-by-field;
// simpler and safer in a no-build environment than relying on Go struct
// layout matching the kernel's C struct layout via unsafe casts.
type wireWriter struct {
	buf []byte
}

func (w *wireWriter) u8(v uint8)   { w.buf = append(w.buf, v) }
func (w *wireWriter) u32(v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *wireWriter) i32(v int32) { w.u32(uint32(v)) }
func (w *wireWriter) u64(v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	w.buf = append(w.buf, b[:]...)
}
func (w *wireWriter) bytes(b []byte) { w.buf = append(w.buf, b...) }
func (w *wireWriter) zero(n int)     { w.buf = append(w.buf, make([]byte, n)...) }

type wireReader struct {
	buf []byte
	off int
}

func (r *wireReader) remaining() int { return len(r.buf) - r.off }

func (r *wireReader) u32() uint32 {
	v := binary.LittleEndian.Uint32(r.buf[r.off : r.off+4])
	r.off += 4
	return v
}
func (r *wireReader) i32() int32 { return int32(r.u32()) }
func (r *wireReader) u64() uint64 {
	v := binary.LittleEndian.Uint64(r.buf[r.off : r.off+8])
	r.off += 8
	return v
}
func (r *wireReader) skip(n int) { r.off += n }
func (r *wireReader) rest() []byte {
	b := r.buf[r.off:]
	r.off = len(r.buf)
	return b
}
func (r *wireReader) take(n int) []byte {
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

// writeAttr appends a fuse_attr (88 bytes) for st to w.
func writeAttr(w *wireWriter, st fusetypes.Stat) {
	w.u64(uint64(st.Ino))
	w.u64(st.Size)
	w.u64(st.Blocks)
	w.u64(uint64(st.Atime.Sec))
	w.u64(uint64(st.Mtime.Sec))
	w.u64(uint64(st.Ctime.Sec))
	w.u32(st.Atime.Nsec)
	w.u32(st.Mtime.Nsec)
	w.u32(st.Ctime.Nsec)
	w.u32(uint32(st.Mode))
	w.u32(uint32(st.Nlink))
	w.u32(uint32(st.Uid))
	w.u32(uint32(st.Gid))
	w.u32(st.Blksize)
	w.u32(0) // padding
	w.u64(uint64(st.Rdev))
}

const attrSize = 88

// writeEntryOut appends a fuse_entry_out (40 + attrSize bytes).
func writeEntryOut(w *wireWriter, ino fusetypes.Ino, generation uint64, entryValidSec, entryValidNsec uint32, attrValidSec, attrValidNsec uint32, attr fusetypes.Stat) {
	w.u64(uint64(ino))
	w.u64(generation)
	w.u64(uint64(entryValidSec))
	w.u64(uint64(attrValidSec))
	w.u32(entryValidNsec)
	w.u32(attrValidNsec)
	writeAttr(w, attr)
}

// writeAttrOut appends a fuse_attr_out (16 + attrSize bytes).
func writeAttrOut(w *wireWriter, validSec, validNsec uint32, attr fusetypes.Stat) {
	w.u64(uint64(validSec))
	w.u32(validNsec)
	w.u32(0) // padding
	writeAttr(w, attr)
}
