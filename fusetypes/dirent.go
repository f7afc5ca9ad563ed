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

// DirentType is the coarse file-type tag carried by a directory entry, for
// use by getdents(2)-family callers before they stat the name.
type DirentType uint32

const (
	DTUnknown DirentType = 0
	DTFIFO    DirentType = 1
	DTChr     DirentType = 2
	DTDir     DirentType = 4
	DTBlk     DirentType = 6
	DTReg     DirentType = 8
	DTLnk     DirentType = 10
	DTSock    DirentType = 12
)

// TypeFromMode derives the DirentType from a Stat.Mode, for handlers that
// already computed full attributes and don't want to duplicate the
// type-bit decoding.
func TypeFromMode(m Mode) DirentType {
	switch m.Type() {
	case ModeFIFO:
		return DTFIFO
	case ModeChar:
		return DTChr
	case ModeDir:
		return DTDir
	case ModeBlock:
		return DTBlk
	case ModeRegular:
		return DTReg
	case ModeSymlink:
		return DTLnk
	case ModeSocket:
		return DTSock
	default:
		return DTUnknown
	}
}

// Dirent is one directory entry as produced by a readdir handler. Offset is
// opaque to the core: the handler mints it and it is later echoed back
// verbatim in the Offset field of the next ReadDir call, letting the
// handler implement whatever resumable cursor it wants (array index, B-tree
// key, etc -- see spec.md §4.4's readdir pagination algorithm).
type Dirent struct {
	Name   string
	Ino    Ino
	Type   DirentType
	Offset uint64
}
