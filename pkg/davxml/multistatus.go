// Copyright 2025 ZapFS Authors
// SPDX-License-Identifier: Apache-2.0

package davxml

import (
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/logger"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// PropfindBody asks for the properties ParseMultistatus understands.
const PropfindBody = `<?xml version="1.0" encoding="utf-8" ?>` +
	`<D:propfind xmlns:D="DAV:" xmlns:L="LCGDM:"><D:prop>` +
	`<D:getlastmodified/><D:creationdate/><D:getcontentlength/><D:resourcetype/><L:mode/>` +
	`</D:prop></D:propfind>`

type multistatus struct {
	Responses []davResponse `xml:"response"`
}

type davResponse struct {
	Href      string        `xml:"href"`
	Status    string        `xml:"status"`
	Propstats []davPropstat `xml:"propstat"`
}

type davPropstat struct {
	Status string  `xml:"status"`
	Prop   davProp `xml:"prop"`
}

type davProp struct {
	LastModified  string `xml:"getlastmodified"`
	CreationDate  string `xml:"creationdate"`
	ContentLength string `xml:"getcontentlength"`
	Mode          string `xml:"mode"`
	ResourceType  struct {
		Collection *struct{} `xml:"collection"`
	} `xml:"resourcetype"`
}

// ParseMultistatus decodes a PROPFIND answer. Entries keep the order of the
// <response> elements; propstat blocks with a failure status are dropped.
// A document without any <response> is a WebDavPropertiesParsingError.
func ParseMultistatus(r io.Reader) ([]Entry, error) {
	var ms multistatus
	if err := decode(r, &ms); err != nil {
		return nil, daverr.Wrap(err, daverr.WebDavPropertiesParsingError, scope, "multistatus")
	}
	if len(ms.Responses) == 0 {
		return nil, daverr.New(daverr.WebDavPropertiesParsingError, scope, "multistatus without response")
	}

	log := logger.Scoped(logger.ScopeXML)
	entries := make([]Entry, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		name := hrefName(resp.Href)
		for _, ps := range resp.Propstats {
			status := parseStatusLine(ps.Status)
			if status <= 100 || status >= 400 {
				log.Debug().Str("href", resp.Href).Int("status", status).Msg("properties dropped")
				continue
			}
			entries = append(entries, Entry{Name: name, Info: ps.Prop.statInfo()})
		}
	}
	if len(entries) == 0 {
		return nil, daverr.New(daverr.WebDavPropertiesParsingError, scope, "no valid properties in multistatus")
	}
	return entries, nil
}

// ResponseStatus is the per-resource outcome reported in a 207 answer to
// DELETE, MOVE or COPY.
type ResponseStatus struct {
	Href   string
	Status int
}

// ParseResponseStatuses decodes the <response><status> pairs of a
// multistatus document. Responses without a status line are skipped.
func ParseResponseStatuses(r io.Reader) ([]ResponseStatus, error) {
	var ms multistatus
	if err := decode(r, &ms); err != nil {
		return nil, daverr.Wrap(err, daverr.WebDavPropertiesParsingError, scope, "multistatus")
	}
	out := make([]ResponseStatus, 0, len(ms.Responses))
	for _, resp := range ms.Responses {
		if strings.TrimSpace(resp.Status) == "" {
			continue
		}
		out = append(out, ResponseStatus{Href: strings.TrimSpace(resp.Href), Status: parseStatusLine(resp.Status)})
	}
	return out, nil
}

func (p *davProp) statInfo() types.StatInfo {
	// resources that carry no mode get full access
	info := types.StatInfo{NLink: 1, Mode: 0o777}

	if v := strings.TrimSpace(p.LastModified); v != "" {
		if t, err := http.ParseTime(v); err == nil {
			info.MTime = t
			info.ATime = t
		} else {
			logger.Scoped(logger.ScopeXML).Warn().Str("value", v).Msg("getlastmodified parsing error, ignored")
		}
	}
	if v := strings.TrimSpace(p.CreationDate); v != "" {
		if t, ok := parseISODate(v); ok {
			info.CTime = t
		}
	}
	if v := strings.TrimSpace(p.ContentLength); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			info.Size = n
		}
	}
	if v := strings.TrimSpace(p.Mode); v != "" {
		if m, err := strconv.ParseUint(v, 8, 32); err == nil {
			info.Mode = unixMode(uint32(m))
		}
	}
	if p.ResourceType.Collection != nil {
		info.Mode |= os.ModeDir
	}
	return info
}

func parseISODate(v string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, http.TimeFormat, time.RFC1123} {
		if t, err := time.Parse(layout, v); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// unixMode converts st_mode bits to an os.FileMode.
func unixMode(m uint32) os.FileMode {
	const sIFMT, sIFDIR, sIFLNK = 0o170000, 0o040000, 0o120000
	mode := os.FileMode(m & 0o777)
	switch m & sIFMT {
	case sIFDIR:
		mode |= os.ModeDir
	case sIFLNK:
		mode |= os.ModeSymlink
	}
	return mode
}

// parseStatusLine extracts the code from "HTTP/1.1 200 OK".
func parseStatusLine(line string) int {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return 500
	}
	code, err := strconv.Atoi(fields[1])
	if err != nil {
		return 500
	}
	return code
}

func hrefName(href string) string {
	href = strings.TrimSpace(href)
	if u, err := url.Parse(href); err == nil {
		href = u.Path
	}
	return baseName(href)
}
