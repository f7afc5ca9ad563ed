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

import (
	"context"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
	"github.com/relvacode/fuse3/validate"
)

// Handlers is the optional-handler registry: every field is a plain
// function, and a nil field means the operation is unimplemented. Unlike an
// interface, a consumer filesystem can populate only the handful of fields
// it cares about and leave the rest nil; the per-operation wrapper function
// below it (Lookup, GetAttr, ...) turns a nil handler into ENOSYS without
// ever entering user code, the same role NotImplementedFileSystem played
// for the teacher's older interface-based design, but without forcing every
// filesystem to embed a base struct.
type Handlers struct {
	Lookup   func(context.Context, fusetypes.RequestContext, LookupRequest) (LookupResponse, error)
	GetAttr  func(context.Context, fusetypes.RequestContext, GetAttrRequest) (GetAttrResponse, error)
	SetAttr  func(context.Context, fusetypes.RequestContext, SetAttrRequest) (SetAttrResponse, error)
	Readlink func(context.Context, fusetypes.RequestContext, ReadlinkRequest) (ReadlinkResponse, error)
	Mknod    func(context.Context, fusetypes.RequestContext, MknodRequest) (MknodResponse, error)
	Mkdir    func(context.Context, fusetypes.RequestContext, MkdirRequest) (MkdirResponse, error)
	Unlink   func(context.Context, fusetypes.RequestContext, UnlinkRequest) (UnlinkResponse, error)
	Rmdir    func(context.Context, fusetypes.RequestContext, RmdirRequest) (RmdirResponse, error)
	Symlink  func(context.Context, fusetypes.RequestContext, SymlinkRequest) (SymlinkResponse, error)
	Rename   func(context.Context, fusetypes.RequestContext, RenameRequest) (RenameResponse, error)
	Link     func(context.Context, fusetypes.RequestContext, LinkRequest) (LinkResponse, error)

	Open          func(context.Context, fusetypes.RequestContext, OpenRequest) (OpenResponse, error)
	Create        func(context.Context, fusetypes.RequestContext, CreateRequest) (CreateResponse, error)
	Read          func(context.Context, fusetypes.RequestContext, ReadRequest) (ReadResponse, error)
	Write         func(context.Context, fusetypes.RequestContext, WriteRequest) (WriteResponse, error)
	Flush         func(context.Context, fusetypes.RequestContext, FlushRequest) (FlushResponse, error)
	Release       func(context.Context, fusetypes.RequestContext, ReleaseRequest) (ReleaseResponse, error)
	Fsync         func(context.Context, fusetypes.RequestContext, FsyncRequest) (FsyncResponse, error)
	CopyFileRange func(context.Context, fusetypes.RequestContext, CopyFileRangeRequest) (CopyFileRangeResponse, error)
	Lseek         func(context.Context, fusetypes.RequestContext, LseekRequest) (LseekResponse, error)

	OpenDir    func(context.Context, fusetypes.RequestContext, OpenDirRequest) (OpenDirResponse, error)
	ReadDir    func(context.Context, fusetypes.RequestContext, ReadDirRequest) (ReadDirResponse, error)
	ReleaseDir func(context.Context, fusetypes.RequestContext, ReleaseDirRequest) (ReleaseDirResponse, error)
	FsyncDir   func(context.Context, fusetypes.RequestContext, FsyncDirRequest) (FsyncDirResponse, error)

	Statfs func(context.Context, fusetypes.RequestContext, StatfsRequest) (StatfsResponse, error)

	SetXattr    func(context.Context, fusetypes.RequestContext, SetXattrRequest) (SetXattrResponse, error)
	GetXattr    func(context.Context, fusetypes.RequestContext, GetXattrRequest) (GetXattrResponse, error)
	ListXattr   func(context.Context, fusetypes.RequestContext, ListXattrRequest) (ListXattrResponse, error)
	RemoveXattr func(context.Context, fusetypes.RequestContext, RemoveXattrRequest) (RemoveXattrResponse, error)

	Access func(context.Context, fusetypes.RequestContext, AccessRequest) (AccessResponse, error)
}

func Lookup(ctx context.Context, h *Handlers, header RequestHeader, req LookupRequest) (LookupResponse, error) {
	return invoke(ctx, header, req,
		func(r LookupRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			return validate.Name(r.Name, validate.NameOptions{})
		},
		h.Lookup,
		func(r LookupResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func GetAttr(ctx context.Context, h *Handlers, header RequestHeader, req GetAttrRequest) (GetAttrResponse, error) {
	return invoke(ctx, header, req,
		func(r GetAttrRequest) error { return validate.Ino(r.Ino) },
		h.GetAttr,
		nil,
	)
}

func SetAttr(ctx context.Context, h *Handlers, header RequestHeader, req SetAttrRequest) (SetAttrResponse, error) {
	return invoke(ctx, header, req,
		func(r SetAttrRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			if r.Valid.Has(SetAttrSize) && r.Attr.Size > 1<<62 {
				return errno.Error(errno.EINVAL)
			}
			return nil
		},
		h.SetAttr,
		nil,
	)
}

func Readlink(ctx context.Context, h *Handlers, header RequestHeader, req ReadlinkRequest) (ReadlinkResponse, error) {
	return invoke(ctx, header, req,
		func(r ReadlinkRequest) error { return validate.Ino(r.Ino) },
		h.Readlink,
		func(r ReadlinkResponse) error {
			if len(r.Target) == 0 {
				return errno.Error(errno.EIO)
			}
			return nil
		},
	)
}

func Mknod(ctx context.Context, h *Handlers, header RequestHeader, req MknodRequest) (MknodResponse, error) {
	return invoke(ctx, header, req,
		func(r MknodRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			if err := validate.Name(r.Name, validate.NameOptions{}); err != nil {
				return err
			}
			return validate.Mode(r.Mode, validate.ModeOptions{ForbidDirectory: true})
		},
		h.Mknod,
		func(r MknodResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func Mkdir(ctx context.Context, h *Handlers, header RequestHeader, req MkdirRequest) (MkdirResponse, error) {
	return invoke(ctx, header, req,
		func(r MkdirRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			if err := validate.Name(r.Name, validate.NameOptions{}); err != nil {
				return err
			}
			return validate.Mode(r.Mode, validate.ModeOptions{RequireDirectory: true})
		},
		h.Mkdir,
		func(r MkdirResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func Unlink(ctx context.Context, h *Handlers, header RequestHeader, req UnlinkRequest) (UnlinkResponse, error) {
	return invoke(ctx, header, req,
		func(r UnlinkRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			return validate.Name(r.Name, validate.NameOptions{})
		},
		h.Unlink,
		nil,
	)
}

func Rmdir(ctx context.Context, h *Handlers, header RequestHeader, req RmdirRequest) (RmdirResponse, error) {
	return invoke(ctx, header, req,
		func(r RmdirRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			return validate.Name(r.Name, validate.NameOptions{})
		},
		h.Rmdir,
		nil,
	)
}

func Symlink(ctx context.Context, h *Handlers, header RequestHeader, req SymlinkRequest) (SymlinkResponse, error) {
	return invoke(ctx, header, req,
		func(r SymlinkRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			if err := validate.Name(r.Name, validate.NameOptions{}); err != nil {
				return err
			}
			if len(r.Target) == 0 {
				return errno.Error(errno.EINVAL)
			}
			return nil
		},
		h.Symlink,
		func(r SymlinkResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func Rename(ctx context.Context, h *Handlers, header RequestHeader, req RenameRequest) (RenameResponse, error) {
	return invoke(ctx, header, req,
		func(r RenameRequest) error {
			if err := validate.Ino(r.OldParent); err != nil {
				return err
			}
			if err := validate.Ino(r.NewParent); err != nil {
				return err
			}
			if err := validate.Name(r.OldName, validate.NameOptions{}); err != nil {
				return err
			}
			if err := validate.Name(r.NewName, validate.NameOptions{}); err != nil {
				return err
			}
			return validate.RenameFlags(r.Flags)
		},
		h.Rename,
		nil,
	)
}

func Link(ctx context.Context, h *Handlers, header RequestHeader, req LinkRequest) (LinkResponse, error) {
	return invoke(ctx, header, req,
		func(r LinkRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			if err := validate.Ino(r.NewParent); err != nil {
				return err
			}
			return validate.Name(r.NewName, validate.NameOptions{})
		},
		h.Link,
		func(r LinkResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func Open(ctx context.Context, h *Handlers, header RequestHeader, req OpenRequest) (OpenResponse, error) {
	return invoke(ctx, header, req,
		func(r OpenRequest) error { return validate.Ino(r.Ino) },
		h.Open,
		nil,
	)
}

func Create(ctx context.Context, h *Handlers, header RequestHeader, req CreateRequest) (CreateResponse, error) {
	return invoke(ctx, header, req,
		func(r CreateRequest) error {
			if err := validate.Ino(r.Parent); err != nil {
				return err
			}
			if err := validate.Name(r.Name, validate.NameOptions{}); err != nil {
				return err
			}
			return validate.Mode(r.Mode, validate.ModeOptions{ForbidDirectory: true})
		},
		h.Create,
		func(r CreateResponse) error { return validate.Ino(r.Entry.Ino) },
	)
}

func Read(ctx context.Context, h *Handlers, header RequestHeader, req ReadRequest) (ReadResponse, error) {
	return invoke(ctx, header, req,
		func(r ReadRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			if err := validate.Offset(r.Offset); err != nil {
				return err
			}
			return validate.Size(r.Size)
		},
		h.Read,
		func(r ReadResponse) error {
			if int64(len(r.Data)) > validate.MaxReadWriteSize {
				return errno.Error(errno.EIO)
			}
			return nil
		},
	)
}

func Write(ctx context.Context, h *Handlers, header RequestHeader, req WriteRequest) (WriteResponse, error) {
	return invoke(ctx, header, req,
		func(r WriteRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			if err := validate.Offset(r.Offset); err != nil {
				return err
			}
			return validate.Size(int64(len(r.Data)))
		},
		h.Write,
		func(r WriteResponse) error { return nil },
	)
}

func Flush(ctx context.Context, h *Handlers, header RequestHeader, req FlushRequest) (FlushResponse, error) {
	return invoke(ctx, header, req,
		func(r FlushRequest) error { return validate.Ino(r.Ino) },
		h.Flush,
		nil,
	)
}

func Release(ctx context.Context, h *Handlers, header RequestHeader, req ReleaseRequest) (ReleaseResponse, error) {
	return invoke(ctx, header, req,
		func(r ReleaseRequest) error { return validate.Ino(r.Ino) },
		h.Release,
		nil,
	)
}

func Fsync(ctx context.Context, h *Handlers, header RequestHeader, req FsyncRequest) (FsyncResponse, error) {
	return invoke(ctx, header, req,
		func(r FsyncRequest) error { return validate.Ino(r.Ino) },
		h.Fsync,
		nil,
	)
}

func OpenDir(ctx context.Context, h *Handlers, header RequestHeader, req OpenDirRequest) (OpenDirResponse, error) {
	return invoke(ctx, header, req,
		func(r OpenDirRequest) error { return validate.Ino(r.Ino) },
		h.OpenDir,
		nil,
	)
}

func ReadDir(ctx context.Context, h *Handlers, header RequestHeader, req ReadDirRequest) (ReadDirResponse, error) {
	return invoke(ctx, header, req,
		func(r ReadDirRequest) error { return validate.Ino(r.Ino) },
		h.ReadDir,
		func(r ReadDirResponse) error {
			if r.Attrs != nil && len(r.Attrs) != len(r.Entries) {
				return errno.Error(errno.EIO)
			}
			return nil
		},
	)
}

func ReleaseDir(ctx context.Context, h *Handlers, header RequestHeader, req ReleaseDirRequest) (ReleaseDirResponse, error) {
	return invoke(ctx, header, req,
		func(r ReleaseDirRequest) error { return validate.Ino(r.Ino) },
		h.ReleaseDir,
		nil,
	)
}

func FsyncDir(ctx context.Context, h *Handlers, header RequestHeader, req FsyncDirRequest) (FsyncDirResponse, error) {
	return invoke(ctx, header, req,
		func(r FsyncDirRequest) error { return validate.Ino(r.Ino) },
		h.FsyncDir,
		nil,
	)
}

func Statfs(ctx context.Context, h *Handlers, header RequestHeader, req StatfsRequest) (StatfsResponse, error) {
	return invoke(ctx, header, req,
		func(r StatfsRequest) error { return nil },
		h.Statfs,
		nil,
	)
}

func SetXattr(ctx context.Context, h *Handlers, header RequestHeader, req SetXattrRequest) (SetXattrResponse, error) {
	return invoke(ctx, header, req,
		func(r SetXattrRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			return validate.Name(r.Name, validate.NameOptions{AllowDotAndDotDot: true})
		},
		h.SetXattr,
		nil,
	)
}

func GetXattr(ctx context.Context, h *Handlers, header RequestHeader, req GetXattrRequest) (GetXattrResponse, error) {
	return invoke(ctx, header, req,
		func(r GetXattrRequest) error { return validate.Ino(r.Ino) },
		h.GetXattr,
		nil,
	)
}

func ListXattr(ctx context.Context, h *Handlers, header RequestHeader, req ListXattrRequest) (ListXattrResponse, error) {
	return invoke(ctx, header, req,
		func(r ListXattrRequest) error { return validate.Ino(r.Ino) },
		h.ListXattr,
		nil,
	)
}

func RemoveXattr(ctx context.Context, h *Handlers, header RequestHeader, req RemoveXattrRequest) (RemoveXattrResponse, error) {
	return invoke(ctx, header, req,
		func(r RemoveXattrRequest) error {
			if err := validate.Ino(r.Ino); err != nil {
				return err
			}
			return validate.Name(r.Name, validate.NameOptions{AllowDotAndDotDot: true})
		},
		h.RemoveXattr,
		nil,
	)
}

func Access(ctx context.Context, h *Handlers, header RequestHeader, req AccessRequest) (AccessResponse, error) {
	return invoke(ctx, header, req,
		func(r AccessRequest) error { return validate.Ino(r.Ino) },
		h.Access,
		nil,
	)
}

func CopyFileRange(ctx context.Context, h *Handlers, header RequestHeader, req CopyFileRangeRequest) (CopyFileRangeResponse, error) {
	return invoke(ctx, header, req,
		func(r CopyFileRangeRequest) error {
			if err := validate.Ino(r.InIno); err != nil {
				return err
			}
			return validate.Ino(r.OutIno)
		},
		h.CopyFileRange,
		nil,
	)
}

func Lseek(ctx context.Context, h *Handlers, header RequestHeader, req LseekRequest) (LseekResponse, error) {
	return invoke(ctx, header, req,
		func(r LseekRequest) error { return validate.Ino(r.Ino) },
		h.Lseek,
		nil,
	)
}
