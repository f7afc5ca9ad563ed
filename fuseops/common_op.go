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

// Package fuseops implements the operation-wrapper contract of spec.md §4.4:
// every kernel request is validated, matched against an optionally-absent
// user handler, invoked, and has its result validated before it is ever
// handed to the kernel adapter (the `kernel` package) for encoding. None of
// the functions here touch /dev/fuse directly.
package fuseops

import (
	"context"
	"flag"
	"log"
	"reflect"
	"strings"
	"sync"

	"github.com/jacobsa/reqtrace"

	"github.com/relvacode/fuse3/errno"
	"github.com/relvacode/fuse3/fusetypes"
	"github.com/relvacode/fuse3/validate"
)

var fTraceOps = flag.Bool(
	"fuse.trace_ops",
	false,
	"Enable per-operation reqtrace spans. Off by default; reqtrace adds "+
		"measurable overhead per request.")

// RequestHeader carries the metadata the kernel attaches to every request,
// independent of the operation-specific payload.
type RequestHeader struct {
	// Unique is the kernel's per-request identifier, echoed back verbatim in
	// the reply and used to correlate log lines and interrupt notifications.
	Unique uint64

	Context fusetypes.RequestContext
}

func describeOpType(t reflect.Type) string {
	name := t.String()

	// The usual case: a string that looks like "fuseops.LookupRequest".
	const prefix = "fuseops."
	const suffix = "Request"
	if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, suffix) {
		return name[len(prefix) : len(name)-len(suffix)]
	}

	return name
}

var (
	opLoggerOnce sync.Once
	opLogger     *log.Logger
)

func getOpLogger() *log.Logger {
	opLoggerOnce.Do(func() {
		opLogger = log.New(log.Writer(), "fuseops: ", log.LstdFlags|log.Lmicroseconds)
	})
	return opLogger
}

// invoke runs the six-step operation-wrapper contract described by
// spec.md §4.4:
//
//  1. validate the request shape (validateReq)
//  2. validate the request context (header)
//  3. look the handler up; a nil handler yields ENOSYS without ever calling
//     into user code
//  4. invoke the handler inside a reqtrace span
//  5. validate the result shape (validateResp); a malformed result is
//     reported as EIO rather than propagated
//  6. normalize whatever error comes out into an errno.Error
func invoke[Req any, Resp any](
	ctx context.Context,
	header RequestHeader,
	req Req,
	validateReq func(Req) error,
	handler func(context.Context, fusetypes.RequestContext, Req) (Resp, error),
	validateResp func(Resp) error,
) (resp Resp, err error) {
	opType := describeOpType(reflect.TypeOf(req))

	if err = validateReq(req); err != nil {
		getOpLogger().Printf("unique=%d op=%s reject (request): %v", header.Unique, opType, err)
		return resp, normalize(err)
	}

	if err = validate.RequestContext(header.Context); err != nil {
		getOpLogger().Printf("unique=%d op=%s reject (context): %v", header.Unique, opType, err)
		return resp, normalize(err)
	}

	if handler == nil {
		return resp, errno.Error(errno.ENOSYS)
	}

	spanCtx := ctx
	var report reqtrace.ReportFunc
	if *fTraceOps && reqtrace.Enabled() {
		spanCtx, report = reqtrace.StartSpan(ctx, opType)
	}

	resp, err = handler(spanCtx, header.Context, req)
	if report != nil {
		report(err)
	}

	if err != nil {
		getOpLogger().Printf("unique=%d op=%s -> error: %v", header.Unique, opType, err)
		return resp, normalize(err)
	}

	if validateResp != nil {
		if shapeErr := validateResp(resp); shapeErr != nil {
			getOpLogger().Printf("unique=%d op=%s handler returned malformed result: %v", header.Unique, opType, shapeErr)
			var zero Resp
			return zero, errno.Error(errno.EIO)
		}
	}

	return resp, nil
}

// normalize converts any error returned by request validation or a user
// handler into an errno.Error, defaulting to EIO for errors that carry no
// recognizable errno (spec.md §4.2 "Error normalization").
func normalize(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := errno.FromError(err); ok {
		return err
	}
	return errno.Error(errno.EIO)
}

