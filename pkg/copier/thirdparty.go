// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package copier

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/metaops"
	"github.com/LeeDigitalWorks/zapdav/pkg/params"
	"github.com/LeeDigitalWorks/zapdav/pkg/request"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
	"github.com/LeeDigitalWorks/zapdav/pkg/uri"
)

const (
	scope = "copy"

	// DefaultStreams is the stream count requested from the active party.
	DefaultStreams = 1

	maxCopyHops = 16
)

// ThirdPartyOptions tunes ThirdParty.
type ThirdPartyOptions struct {
	// Streams is sent as X-Number-Of-Streams.
	Streams int
	// DstParams signs the destination. Nil reuses the source parameters.
	DstParams *params.RequestParams
	// Callback receives the aggregated progress, at most once per second.
	Callback func(types.PerformanceData)
	// Cancel is polled between markers.
	Cancel func() bool
}

// ThirdParty asks the server holding src to push it to dst with a WebDAV
// COPY and follows its performance markers until the transfer ends.
func ThirdParty(ctx context.Context, exec *metaops.Executor, src, dst *uri.URI, p *params.RequestParams, opts ThirdPartyOptions) error {
	err := thirdParty(ctx, exec, src, dst, p, opts)
	switch {
	case err == nil:
		ThirdPartyCopies.WithLabelValues("success").Inc()
	case daverr.KindOf(err) == daverr.Canceled:
		ThirdPartyCopies.WithLabelValues("canceled").Inc()
	default:
		ThirdPartyCopies.WithLabelValues("failed").Inc()
	}
	return daverr.Prefix(err, "third party copy")
}

func thirdParty(ctx context.Context, exec *metaops.Executor, src, dst *uri.URI, p *params.RequestParams, opts ThirdPartyOptions) error {
	log := logger.For(ctx, logger.ScopeCopy)
	if err := src.Err(); err != nil {
		return err
	}
	if err := dst.Err(); err != nil {
		return err
	}
	if p == nil {
		d := params.Default()
		p = &d
	}
	srcParams := p.Clone()
	srcParams.TransparentRedirect = false
	dstParams := &srcParams
	if opts.DstParams != nil {
		dstParams = opts.DstParams
	}
	streams := opts.Streams
	if streams <= 0 {
		streams = DefaultStreams
	}

	var discard types.HeaderVec
	signedDst, err := metaops.Sign(ctx, http.MethodPut, dst, dstParams, &discard)
	if err != nil {
		return err
	}

	target := src
	for redirects := 0; ; {
		call := &metaops.Call{
			Method: "COPY",
			URI:    target,
			Params: &srcParams,
			Accept: []int{300, 301, 302, 303, 307, 308, 403, 404, 501},
		}
		call.Headers.Set("Destination", signedDst.URL().String())
		call.Headers.Set("X-Number-Of-Streams", strconv.Itoa(streams))

		req, err := exec.Open(ctx, call)
		if err != nil {
			return err
		}

		if delegate, ok := req.AnswerHeader("X-Delegate-To"); ok {
			req.EndRequest()
			return daverr.Newf(daverr.OperationNonSupported, scope, "delegation to %s is not supported", delegate)
		}

		code := req.StatusCode()
		if code >= 300 && code < 400 {
			loc, ok := req.AnswerHeader("Location")
			req.EndRequest()
			if !ok || loc == "" {
				return daverr.Newf(daverr.InvalidServerResponse, scope, "COPY %s: redirection without Location", target)
			}
			redirects++
			if redirects > maxCopyHops {
				return daverr.Newf(daverr.RedirectionLoop, scope, "COPY %s: more than %d redirections", src, maxCopyHops)
			}
			next := target.ResolveReference(loc)
			log.Debug().Str("from", target.String()).Str("to", next.String()).Msg("copy redirected")
			target = next
			continue
		}

		if err := copyStatus(code, target); err != nil {
			req.EndRequest()
			return err
		}

		err = followMarkers(ctx, request.Body(req), opts)
		req.EndRequest()
		if err == nil {
			log.Info().Str("src", src.String()).Str("dst", dst.String()).Msg("third party copy done")
		}
		return err
	}
}

func copyStatus(code int, u *uri.URI) error {
	switch {
	case code == http.StatusNotFound:
		return daverr.Newf(daverr.FileNotFound, scope, "COPY %s: source not found", u)
	case code == http.StatusForbidden:
		return daverr.Newf(daverr.PermissionRefused, scope, "COPY %s: permission refused", u)
	case code == http.StatusNotImplemented:
		return daverr.Newf(daverr.OperationNonSupported, scope, "COPY %s: third party copy not supported by server", u)
	case code >= 300:
		return daverr.Newf(daverr.UnknownError, scope, "COPY %s: unexpected status %d", u, code)
	}
	return nil
}

// followMarkers parses the marker stream:
//
//	Perf Marker
//	    Timestamp: 1700000000
//	    Stripe Index: 0
//	    Stripe Bytes Transferred: 1024
//	    Total Stripe Count: 1
//	End
//	success: Created
func followMarkers(ctx context.Context, r io.Reader, opts ThirdPartyOptions) error {
	var (
		perf     types.PerformanceData
		holder   types.PerformanceMarker
		reported int64
		notify   = rate.Sometimes{Interval: time.Second}
	)

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if opts.Cancel != nil && opts.Cancel() {
			return daverr.New(daverr.Canceled, scope, "canceled")
		}
		if err := ctx.Err(); err != nil {
			return daverr.Wrap(err, daverr.Canceled, scope, "canceled")
		}

		raw := sc.Text()
		line := strings.TrimLeft(raw, " \t")
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)

		switch {
		case strings.HasPrefix(lower, "perf marker"):
			holder = types.PerformanceMarker{}
		case strings.HasPrefix(lower, "timestamp:"):
			holder.Latest = markerValue(line)
		case strings.HasPrefix(lower, "stripe index:"):
			holder.Index = int(markerValue(line))
		case strings.HasPrefix(lower, "stripe bytes transferred:"):
			holder.Transferred = markerValue(line)
		case strings.HasPrefix(lower, "total stripe count:"):
			holder.Count = int(markerValue(line))
		case strings.HasPrefix(lower, "end"):
			perf.Update(holder)
			if total := perf.TotalTransferred(); total > reported {
				ThirdPartyTransferred.Add(float64(total - reported))
				reported = total
			}
			if opts.Callback != nil {
				notify.Do(func() {
					snapshot := perf
					snapshot.Markers = slices.Clone(perf.Markers)
					opts.Callback(snapshot)
				})
			}
		case strings.HasPrefix(lower, "success"):
			return nil
		case strings.HasPrefix(lower, "aborted"):
			return daverr.New(daverr.Canceled, scope, "transfer aborted by remote party")
		case strings.HasPrefix(lower, "failed"), strings.HasPrefix(lower, "failure"):
			return daverr.Newf(daverr.RemoteError, scope, "Transfer failed: %s", line)
		default:
			logger.For(ctx, logger.ScopeCopy).Debug().Str("line", raw).Msg("unexpected marker line")
			return daverr.Newf(daverr.SystemError, scope, "Unexpected message from remote host: %s", line)
		}
	}
	if err := sc.Err(); err != nil {
		return daverr.Prefix(err, "read performance markers")
	}
	return daverr.New(daverr.SystemError, scope, "connection closed before the transfer verdict")
}

func markerValue(line string) int64 {
	_, v, ok := strings.Cut(line, ":")
	if !ok {
		return 0
	}
	n, _ := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	return n
}
