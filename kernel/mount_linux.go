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
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"golang.org/x/sys/unix"
)

// ErrExternallyManagedMountPoint is returned by Unmount when dir looks like
// a /dev/fd/N mountpoint, which fusermount3 cannot unmount on its own; the
// caller that set up such a mountpoint owns tearing it down.
var ErrExternallyManagedMountPoint = errors.New("kernel: mountpoint is externally managed")

// MountOptions configures Mount. Fields mirror the fusermount3 command-line
// options spec.md §4.9 names for session creation.
type MountOptions struct {
	AllowOther         bool
	AllowRoot          bool
	DefaultPermissions bool
	ReadOnly           bool
	FsName             string
	Subtype            string

	// Extra holds additional raw "-o" option strings passed through
	// verbatim, for options this struct does not model explicitly.
	Extra []string
}

func (o MountOptions) optionString() string {
	var opts []string
	if o.AllowOther {
		opts = append(opts, "allow_other")
	}
	if o.AllowRoot {
		opts = append(opts, "allow_root")
	}
	if o.DefaultPermissions {
		opts = append(opts, "default_permissions")
	}
	if o.ReadOnly {
		opts = append(opts, "ro")
	}
	if o.FsName != "" {
		opts = append(opts, "fsname="+o.FsName)
	}
	if o.Subtype != "" {
		opts = append(opts, "subtype="+o.Subtype)
	}
	opts = append(opts, o.Extra...)
	return strings.Join(opts, ",")
}

// Mount invokes the setuid fusermount3 helper to mount mountpoint, passing
// it one end of a unix SOCK_SEQPACKET socketpair over _FUSE_COMMFD and receiving the
// opened /dev/fuse descriptor back over that socket via SCM_RIGHTS. This
// mirrors the technique fusermount implementations have used since before
// CAP_SYS_ADMIN-gated direct mount(2) calls were an option for unprivileged
// processes.
func Mount(mountpoint string, opt MountOptions) (*os.File, error) {
	local, remote, err := socketpair()
	if err != nil {
		return nil, fmt.Errorf("kernel: creating comm socketpair: %w", err)
	}
	defer remote.Close()

	helper, err := findFusermount()
	if err != nil {
		local.Close()
		return nil, err
	}

	args := []string{mountpoint}
	if optStr := opt.optionString(); optStr != "" {
		args = append([]string{"-o", optStr}, args...)
	}

	cmd := exec.Command(helper, args...)
	cmd.Env = append(os.Environ(), "_FUSE_COMMFD=3")
	cmd.ExtraFiles = []*os.File{remote}
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		local.Close()
		return nil, fmt.Errorf("kernel: running %s: %w", helper, err)
	}

	dev, err := recvFuseFd(local)
	local.Close()
	if err != nil {
		return nil, fmt.Errorf("kernel: receiving /dev/fuse descriptor: %w", err)
	}
	return dev, nil
}

// Unmount shells out to fusermount3 -u, the only supported way for an
// unprivileged process to tear down a FUSE mount.
func Unmount(dir string) error {
	err := fuserunmount(dir)
	if err != nil && strings.HasPrefix(dir, "/dev/fd/") {
		return fmt.Errorf("%w: %s", ErrExternallyManagedMountPoint, err)
	}
	return err
}

func fuserunmount(dir string) error {
	helper, err := findFusermount()
	if err != nil {
		return err
	}
	cmd := exec.Command(helper, "-u", dir)
	output, err := cmd.CombinedOutput()
	if err != nil {
		if len(output) > 0 {
			output = bytes.TrimRight(output, "\n")
			return fmt.Errorf("%v: %s", err, output)
		}
		return err
	}
	return nil
}

func findFusermount() (string, error) {
	for _, name := range []string{"fusermount3", "fusermount"} {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", errors.New("kernel: fusermount3 not found in PATH")
}

// socketpair creates a SOCK_SEQPACKET unix socketpair for the fusermount3
// _FUSE_COMMFD handoff protocol.
func socketpair() (local, remote *os.File, err error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		return nil, nil, err
	}
	return os.NewFile(uintptr(fds[0]), "fuse-comm-local"), os.NewFile(uintptr(fds[1]), "fuse-comm-remote"), nil
}

// recvFuseFd reads the SCM_RIGHTS control message fusermount3 sends over
// local once it has successfully mounted, extracting the /dev/fuse
// descriptor it opened on our behalf.
func recvFuseFd(local *os.File) (*os.File, error) {
	buf := make([]byte, 32)
	oob := make([]byte, unix.CmsgSpace(4))

	n, oobn, _, _, err := unix.Recvmsg(int(local.Fd()), buf, oob, 0)
	if err != nil {
		return nil, err
	}
	if n == 0 && oobn == 0 {
		return nil, errors.New("kernel: fusermount3 closed the comm socket without sending a descriptor")
	}

	messages, err := unix.ParseSocketControlMessage(oob[:oobn])
	if err != nil {
		return nil, fmt.Errorf("parsing control message: %w", err)
	}
	if len(messages) != 1 {
		return nil, fmt.Errorf("expected exactly one control message, got %d", len(messages))
	}

	fds, err := unix.ParseUnixRights(&messages[0])
	if err != nil {
		return nil, fmt.Errorf("parsing unix rights: %w", err)
	}
	if len(fds) != 1 {
		for _, fd := range fds {
			unix.Close(fd)
		}
		return nil, fmt.Errorf("expected exactly one fd, got %d", len(fds))
	}

	return os.NewFile(uintptr(fds[0]), "/dev/fuse"), nil
}
