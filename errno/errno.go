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

// Package errno is the registry of POSIX/Linux error numbers that may cross
// the kernel <-> handler boundary. All FUSE-visible codes are negative;
// success is zero. See fuseops for how operation wrappers use this package
// to normalize handler errors before replying to the kernel.
package errno

import (
	"errors"
	"strings"
	"sync"

	"golang.org/x/sys/unix"
)

// Code is a FUSE-visible error number: zero on success, strictly negative
// on failure. Positive values are never valid on the wire.
type Code int32

// Success is the zero value returned to the kernel for a successful op.
const Success Code = 0

type class uint8

const (
	classPermission class = 1 << iota
	classNotFound
	classExists
	classTemporary
	classIO
	classInvalid
)

type entry struct {
	name  string
	errno unix.Errno
	class class
}

// registryEntries is the authoritative table backing Code<->name lookups and
// classification. Values come from golang.org/x/sys/unix so that they match
// the host's actual errno.h, the way jacobsa/fuse's errors.go borrows
// bazilfuse/syscall constants rather than hand-rolling numbers.
var registryEntries = []entry{
	{"EPERM", unix.EPERM, classPermission},
	{"ENOENT", unix.ENOENT, classNotFound},
	{"ESRCH", unix.ESRCH, classNotFound},
	{"EINTR", unix.EINTR, classTemporary},
	{"EIO", unix.EIO, classIO},
	{"ENXIO", unix.ENXIO, classNotFound},
	{"E2BIG", unix.E2BIG, classInvalid},
	{"ENOEXEC", unix.ENOEXEC, classInvalid},
	{"EBADF", unix.EBADF, classInvalid},
	{"ECHILD", unix.ECHILD, classNotFound},
	{"EAGAIN", unix.EAGAIN, classTemporary},
	{"ENOMEM", unix.ENOMEM, classIO},
	{"EACCES", unix.EACCES, classPermission},
	{"EFAULT", unix.EFAULT, classInvalid},
	{"ENOTBLK", unix.ENOTBLK, classInvalid},
	{"EBUSY", unix.EBUSY, classTemporary},
	{"EEXIST", unix.EEXIST, classExists},
	{"EXDEV", unix.EXDEV, classInvalid},
	{"ENODEV", unix.ENODEV, classNotFound},
	{"ENOTDIR", unix.ENOTDIR, classNotFound},
	{"EISDIR", unix.EISDIR, classInvalid},
	{"EINVAL", unix.EINVAL, classInvalid},
	{"ENFILE", unix.ENFILE, classIO},
	{"EMFILE", unix.EMFILE, classIO},
	{"ENOTTY", unix.ENOTTY, classInvalid},
	{"ETXTBSY", unix.ETXTBSY, classTemporary},
	{"EFBIG", unix.EFBIG, classInvalid},
	{"ENOSPC", unix.ENOSPC, classIO},
	{"ESPIPE", unix.ESPIPE, classInvalid},
	{"EROFS", unix.EROFS, classPermission},
	{"EMLINK", unix.EMLINK, classInvalid},
	{"EPIPE", unix.EPIPE, classIO},
	{"EDOM", unix.EDOM, classInvalid},
	{"ERANGE", unix.ERANGE, classInvalid},
	{"EDEADLK", unix.EDEADLK, classTemporary},
	{"ENAMETOOLONG", unix.ENAMETOOLONG, classInvalid},
	{"ENOLCK", unix.ENOLCK, classTemporary},
	{"ENOSYS", unix.ENOSYS, classInvalid},
	{"ENOTEMPTY", unix.ENOTEMPTY, classExists},
	{"ELOOP", unix.ELOOP, classInvalid},
	{"ENOMSG", unix.ENOMSG, classNotFound},
	{"EIDRM", unix.EIDRM, classNotFound},
	{"ENODATA", unix.ENODATA, classNotFound},
	{"ETIME", unix.ETIME, classTemporary},
	{"ENONET", unix.ENONET, classIO},
	{"EREMOTE", unix.EREMOTE, classIO},
	{"ENOLINK", unix.ENOLINK, classIO},
	{"EPROTO", unix.EPROTO, classIO},
	{"EMULTIHOP", unix.EMULTIHOP, classIO},
	{"EBADMSG", unix.EBADMSG, classInvalid},
	{"EOVERFLOW", unix.EOVERFLOW, classInvalid},
	{"EILSEQ", unix.EILSEQ, classInvalid},
	{"EUSERS", unix.EUSERS, classIO},
	{"ENOTSOCK", unix.ENOTSOCK, classInvalid},
	{"EDESTADDRREQ", unix.EDESTADDRREQ, classInvalid},
	{"EMSGSIZE", unix.EMSGSIZE, classInvalid},
	{"EPROTOTYPE", unix.EPROTOTYPE, classInvalid},
	{"ENOPROTOOPT", unix.ENOPROTOOPT, classInvalid},
	{"EPROTONOSUPPORT", unix.EPROTONOSUPPORT, classInvalid},
	{"ESOCKTNOSUPPORT", unix.ESOCKTNOSUPPORT, classInvalid},
	{"EOPNOTSUPP", unix.EOPNOTSUPP, classInvalid},
	{"EPFNOSUPPORT", unix.EPFNOSUPPORT, classInvalid},
	{"EAFNOSUPPORT", unix.EAFNOSUPPORT, classInvalid},
	{"EADDRINUSE", unix.EADDRINUSE, classExists},
	{"EADDRNOTAVAIL", unix.EADDRNOTAVAIL, classNotFound},
	{"ENETDOWN", unix.ENETDOWN, classIO},
	{"ENETUNREACH", unix.ENETUNREACH, classIO},
	{"ENETRESET", unix.ENETRESET, classIO},
	{"ECONNABORTED", unix.ECONNABORTED, classIO},
	{"ECONNRESET", unix.ECONNRESET, classIO},
	{"ENOBUFS", unix.ENOBUFS, classIO},
	{"EISCONN", unix.EISCONN, classExists},
	{"ENOTCONN", unix.ENOTCONN, classInvalid},
	{"ESHUTDOWN", unix.ESHUTDOWN, classTemporary},
	{"ETOOMANYREFS", unix.ETOOMANYREFS, classInvalid},
	{"ETIMEDOUT", unix.ETIMEDOUT, classTemporary},
	{"ECONNREFUSED", unix.ECONNREFUSED, classIO},
	{"EHOSTDOWN", unix.EHOSTDOWN, classIO},
	{"EHOSTUNREACH", unix.EHOSTUNREACH, classIO},
	{"EALREADY", unix.EALREADY, classTemporary},
	{"EINPROGRESS", unix.EINPROGRESS, classTemporary},
	{"ESTALE", unix.ESTALE, classNotFound},
	{"EDQUOT", unix.EDQUOT, classIO},
	{"ECANCELED", unix.ECANCELED, classTemporary},
	{"EOWNERDEAD", unix.EOWNERDEAD, classIO},
	{"ENOTRECOVERABLE", unix.ENOTRECOVERABLE, classIO},
}

var (
	buildOnce    sync.Once
	byCode       map[Code]*entry
	byUpperName  map[string]*entry
	allOperation = map[string][]string{
		// Per-operation expected-error sets, named here so fuseops wrappers and
		// tests can check a handler error against the operations' documented
		// contract (spec.md §4.1, §4.4).
		"lookup":           {"ENOENT", "EACCES", "ENOTDIR", "ENAMETOOLONG", "EIO"},
		"getattr":          {"ENOENT", "EIO"},
		"setattr":          {"ENOENT", "EACCES", "EPERM", "EROFS", "EINVAL", "EIO"},
		"readlink":         {"ENOENT", "EINVAL", "EIO"},
		"mknod":            {"EEXIST", "EACCES", "ENOSPC", "EROFS", "ENOTDIR", "EIO"},
		"mkdir":            {"EEXIST", "EACCES", "ENOSPC", "EROFS", "ENOTDIR", "EIO"},
		"unlink":           {"ENOENT", "EACCES", "EPERM", "EROFS", "ENOTDIR", "EISDIR", "EIO"},
		"rmdir":            {"ENOENT", "EACCES", "EPERM", "EROFS", "ENOTDIR", "ENOTEMPTY", "EIO"},
		"symlink":          {"EEXIST", "EACCES", "ENOSPC", "EROFS", "ENOTDIR", "EIO"},
		"rename":           {"ENOENT", "EACCES", "EEXIST", "ENOTEMPTY", "EROFS", "EXDEV", "EINVAL", "EIO"},
		"link":             {"ENOENT", "EEXIST", "EPERM", "EROFS", "EXDEV", "EMLINK", "EIO"},
		"open":             {"ENOENT", "EACCES", "EISDIR", "ENFILE", "EMFILE", "EIO"},
		"read":             {"EIO", "EBADF", "EINVAL"},
		"write":            {"EIO", "EBADF", "EINVAL", "ENOSPC", "EFBIG", "EDQUOT"},
		"flush":            {"EIO"},
		"release":          {"EIO"},
		"fsync":            {"EIO", "EROFS", "EINVAL"},
		"opendir":          {"ENOENT", "EACCES", "ENOTDIR", "ENFILE", "EMFILE", "EIO"},
		"readdir":          {"ENOENT", "EBADF", "EIO"},
		"releasedir":       {"EIO"},
		"fsyncdir":         {"EIO", "EROFS", "EINVAL"},
		"statfs":           {"EIO"},
		"setxattr":         {"ENOENT", "EEXIST", "ENODATA", "ENOSPC", "ERANGE", "ENOTSUP", "EIO"},
		"getxattr":         {"ENOENT", "ENODATA", "ERANGE", "ENOTSUP", "EIO"},
		"listxattr":        {"ENOENT", "ERANGE", "ENOTSUP", "EIO"},
		"removexattr":      {"ENOENT", "ENODATA", "ENOTSUP", "EIO"},
		"access":           {"ENOENT", "EACCES", "EIO"},
		"create":           {"EEXIST", "EACCES", "ENOSPC", "EROFS", "ENOTDIR", "EIO"},
		"copy_file_range":  {"EBADF", "EISDIR", "EINVAL", "EIO", "ENOSPC", "EXDEV"},
		"lseek":            {"ENXIO", "EINVAL", "EBADF", "EIO"},
	}
)

func build() {
	byCode = make(map[Code]*entry, len(registryEntries)+1)
	byUpperName = make(map[string]*entry, len(registryEntries)+2)

	for i := range registryEntries {
		e := &registryEntries[i]
		c := Code(-int32(e.errno))
		byCode[c] = e
		byUpperName[e.name] = e
	}

	// ENOTSUP is EOPNOTSUPP on Linux; register the alias name so lookups by
	// either spelling succeed, matching how the rest of the ecosystem treats
	// them interchangeably.
	if e, ok := byUpperName["EOPNOTSUPP"]; ok {
		byUpperName["ENOTSUP"] = e
	}
}

func ensureBuilt() {
	buildOnce.Do(build)
}

// CodeToName returns the canonical upper-case name for a negative errno
// code, or "UNKNOWN" if the code is not in the registry.
func CodeToName(c Code) string {
	ensureBuilt()
	if c == Success {
		return "SUCCESS"
	}
	if e, ok := byCode[c]; ok {
		return e.name
	}
	return "UNKNOWN"
}

// NameToCode returns the negative errno code for a case-insensitive name,
// or 0 if the name is unrecognized. Callers must treat 0 as "not found"
// rather than as the success code when looking up by name.
func NameToCode(name string) Code {
	ensureBuilt()
	upper := strings.ToUpper(strings.TrimSpace(name))
	if upper == "SUCCESS" || upper == "" {
		return Success
	}
	if e, ok := byUpperName[upper]; ok {
		return Code(-int32(e.errno))
	}
	return 0
}

// Message returns a short human-readable description for a code or name.
// Accepts either an int-like Code or a string name.
func Message(codeOrName interface{}) string {
	ensureBuilt()

	var e *entry
	switch v := codeOrName.(type) {
	case Code:
		e = byCode[v]
	case int32:
		e = byCode[Code(v)]
	case int:
		e = byCode[Code(v)]
	case string:
		e = byUpperName[strings.ToUpper(strings.TrimSpace(v))]
	}

	if e == nil {
		return "unknown error"
	}
	return unix.Errno(e.errno).Error()
}

// Normalize ensures an error code carries the correct sign: negative for
// failure, Success (0) for success. It leaves already-negative values
// unchanged and negates accidental positive values, which is the shape
// handler authors most often get wrong.
func Normalize(c int32) Code {
	if c == 0 {
		return Success
	}
	if c > 0 {
		return Code(-c)
	}
	return Code(c)
}

func classify(c Code, want class) bool {
	ensureBuilt()
	e, ok := byCode[c]
	if !ok {
		return false
	}
	return e.class&want != 0
}

// IsPermission reports whether c represents a permission-denied condition
// (EPERM, EACCES, EROFS).
func IsPermission(c Code) bool { return classify(c, classPermission) }

// IsNotFound reports whether c represents a missing-object condition
// (ENOENT, ENOTDIR, ESRCH, ...).
func IsNotFound(c Code) bool { return classify(c, classNotFound) }

// IsExists reports whether c represents an already-exists condition
// (EEXIST, ENOTEMPTY, ...).
func IsExists(c Code) bool { return classify(c, classExists) }

// IsTemporary reports whether c represents a condition the kernel or caller
// may legitimately retry (EAGAIN, EINTR, ETIMEDOUT, ECANCELED, ...).
func IsTemporary(c Code) bool { return classify(c, classTemporary) }

// IsIO reports whether c represents a lower-level I/O failure (EIO,
// ENOSPC, EPIPE, ...).
func IsIO(c Code) bool { return classify(c, classIO) }

// IsInvalid reports whether c represents a malformed request (EINVAL,
// ENAMETOOLONG, ERANGE, ...).
func IsInvalid(c Code) bool { return classify(c, classInvalid) }

// ExpectedFor returns the documented set of error names an operation may
// legitimately return, keyed by the lower_snake_case operation name used
// throughout spec.md's operation contracts table (e.g. "rmdir", "setxattr").
// An operation name that is not in the table yields a slice holding only
// "EIO", which every operation may always return.
func ExpectedFor(op string) []string {
	names, ok := allOperation[op]
	if !ok {
		return []string{"EIO"}
	}
	return names
}

// well-known codes used pervasively enough to warrant direct constants,
// mirroring errors.go in the teacher (EIO, ENOENT, ENOSYS, ENOTEMPTY).
var (
	EPERM        = Code(-int32(unix.EPERM))
	ENOENT       = Code(-int32(unix.ENOENT))
	EIO          = Code(-int32(unix.EIO))
	ENOSYS       = Code(-int32(unix.ENOSYS))
	ENOTEMPTY    = Code(-int32(unix.ENOTEMPTY))
	EINVAL       = Code(-int32(unix.EINVAL))
	ENAMETOOLONG = Code(-int32(unix.ENAMETOOLONG))
	EAGAIN       = Code(-int32(unix.EAGAIN))
	EINTR        = Code(-int32(unix.EINTR))
	ETIMEDOUT    = Code(-int32(unix.ETIMEDOUT))
	ESHUTDOWN    = Code(-int32(unix.ESHUTDOWN))
	ECANCELED    = Code(-int32(unix.ECANCELED))
	ERANGE       = Code(-int32(unix.ERANGE))
	EEXIST       = Code(-int32(unix.EEXIST))
	EACCES       = Code(-int32(unix.EACCES))
	EROFS        = Code(-int32(unix.EROFS))
	ENOTDIR      = Code(-int32(unix.ENOTDIR))
	ENODATA      = Code(-int32(unix.ENODATA))
)

// Error adapts a Code to the standard error interface so it can be returned
// directly from handler and wrapper functions.
type Error Code

func (e Error) Error() string {
	return Message(Code(e))
}

// FromError extracts the errno.Code out of err if it (or something in its
// chain) is an Error, otherwise returns (0, false).
func FromError(err error) (Code, bool) {
	var e Error
	type coder interface{ ErrnoCode() Code }
	if c, ok := err.(coder); ok {
		return c.ErrnoCode(), true
	}
	if errors.As(err, &e) {
		return Code(e), true
	}
	return 0, false
}
