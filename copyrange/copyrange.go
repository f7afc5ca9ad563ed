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

// Package copyrange implements the copy_file_range fast path of spec.md
// §4.8, with a chunked pread/pwrite fallback for kernels that lack the
// syscall or reject it with ENOSYS/EXDEV.
package copyrange

import (
	"sync/atomic"

	"golang.org/x/sys/unix"

	"github.com/relvacode/fuse3/errno"
)

// CurrentOffset is the POSIX sentinel meaning "use the file's current
// offset" for either side of a copy_file_range call.
const CurrentOffset = ^uint64(0) // U64::MAX

const (
	DefaultChunkSize = 1 << 20  // 1 MiB
	MinChunkSize     = 64 << 10 // 64 KiB
	MaxChunkSize     = 8 << 20  // 8 MiB
)

// Stats mirrors the counters spec.md §4.8 requires.
type Stats struct {
	TotalOperations    int64
	TotalBytesCopied   int64
	KernelCopySupported bool
}

// Copier performs copy_file_range with an automatic fallback to chunked
// pread/pwrite, and tracks whether the kernel fast path is still usable.
type Copier struct {
	chunkSize int

	totalOperations    int64
	totalBytesCopied   int64
	kernelCopyDisabled int32 // atomic bool, 0 = supported
}

// Options configures a Copier.
type Options struct {
	// ChunkSize bounds the fallback loop's pread/pwrite size. Clamped to
	// [MinChunkSize, MaxChunkSize]; 0 selects DefaultChunkSize.
	ChunkSize int
}

// New constructs a Copier.
func New(opt Options) *Copier {
	size := opt.ChunkSize
	if size == 0 {
		size = DefaultChunkSize
	}
	if size < MinChunkSize {
		size = MinChunkSize
	}
	if size > MaxChunkSize {
		size = MaxChunkSize
	}
	return &Copier{chunkSize: size}
}

// DisableKernelCopy forces every subsequent Copy call to use the chunked
// fallback, for testing the fallback path independently of host kernel
// support.
func (c *Copier) DisableKernelCopy() {
	atomic.StoreInt32(&c.kernelCopyDisabled, 1)
}

// Copy copies length bytes from fdIn at offIn to fdOut at offOut,
// preferring the copy_file_range(2) syscall and falling back to chunked
// pread/pwrite on ENOSYS/EXDEV or when the kernel path has been disabled.
// offIn/offOut of CurrentOffset mean "use the file's current offset",
// matching the POSIX convention; CurrentOffset is passed straight through
// to copy_file_range (nil *int64) and, in the fallback, means "do not
// seek/pread/pwrite with an explicit offset" is not supported and yields
// EINVAL, since pread/pwrite always require an explicit offset.
//
// On partial progress followed by an error, returns the bytes copied so
// far (> 0) with a nil error if progress was made, matching spec.md
// §4.8's "return N if N > 0, else the errno" rule; callers that need to
// know about a trailing error despite partial progress should inspect the
// returned n against length.
func (c *Copier) Copy(fdIn int, offIn uint64, fdOut int, offOut uint64, length int) (int64, error) {
	atomic.AddInt64(&c.totalOperations, 1)

	if atomic.LoadInt32(&c.kernelCopyDisabled) == 0 {
		n, err := c.kernelCopy(fdIn, offIn, fdOut, offOut, length)
		if err == nil {
			atomic.AddInt64(&c.totalBytesCopied, n)
			return n, nil
		}
		if !isFallbackTrigger(err) {
			if n > 0 {
				atomic.AddInt64(&c.totalBytesCopied, n)
				return n, nil
			}
			return 0, err
		}
		// ENOSYS/EXDEV: fall through to the chunked loop below. ENOSYS
		// means the kernel lacks the syscall, so stop trying it.
		if err == unix.ENOSYS {
			atomic.StoreInt32(&c.kernelCopyDisabled, 1)
		}
	}

	n, err := c.chunkedCopy(fdIn, offIn, fdOut, offOut, length)
	atomic.AddInt64(&c.totalBytesCopied, n)
	return n, err
}

func isFallbackTrigger(err error) bool {
	return err == unix.ENOSYS || err == unix.EXDEV
}

func (c *Copier) kernelCopy(fdIn int, offIn uint64, fdOut int, offOut uint64, length int) (int64, error) {
	var offInPtr, offOutPtr *int64
	if offIn != CurrentOffset {
		v := int64(offIn)
		offInPtr = &v
	}
	if offOut != CurrentOffset {
		v := int64(offOut)
		offOutPtr = &v
	}

	n, err := unix.CopyFileRange(fdIn, offInPtr, fdOut, offOutPtr, length, 0)
	if err != nil {
		return int64(n), err
	}
	return int64(n), nil
}

// chunkedCopy loops pread/pwrite in chunkSize pieces, preserving
// partial-progress semantics: on error after N bytes copied, returns N
// with a nil error if N > 0, else the mapped errno.
func (c *Copier) chunkedCopy(fdIn int, offIn uint64, fdOut int, offOut uint64, length int) (int64, error) {
	if offIn == CurrentOffset || offOut == CurrentOffset {
		return 0, errno.Error(errno.EINVAL)
	}

	buf := make([]byte, c.chunkSize)
	var copied int64
	remaining := length

	for remaining > 0 {
		chunk := c.chunkSize
		if chunk > remaining {
			chunk = remaining
		}

		nRead, err := unix.Pread(fdIn, buf[:chunk], int64(offIn)+copied)
		if err != nil {
			if copied > 0 {
				return copied, nil
			}
			return 0, err
		}
		if nRead == 0 {
			break // EOF on the source.
		}

		nWritten, err := pwriteAll(fdOut, buf[:nRead], int64(offOut)+copied)
		copied += int64(nWritten)
		if err != nil {
			if copied > 0 {
				return copied, nil
			}
			return 0, err
		}

		remaining -= nRead
	}

	return copied, nil
}

// pwriteAll retries pwrite until all of buf has been written or an error
// occurs, since a single pwrite(2) call may return a short write.
func pwriteAll(fd int, buf []byte, offset int64) (int, error) {
	var total int
	for total < len(buf) {
		n, err := unix.Pwrite(fd, buf[total:], offset+int64(total))
		if err != nil {
			return total, err
		}
		if n == 0 {
			return total, unix.EIO
		}
		total += n
	}
	return total, nil
}

// Stats returns a snapshot of this Copier's counters.
func (c *Copier) Stats() Stats {
	return Stats{
		TotalOperations:     atomic.LoadInt64(&c.totalOperations),
		TotalBytesCopied:    atomic.LoadInt64(&c.totalBytesCopied),
		KernelCopySupported: atomic.LoadInt32(&c.kernelCopyDisabled) == 0,
	}
}
