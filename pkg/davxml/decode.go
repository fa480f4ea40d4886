// Package davxml decodes the XML bodies returned by WebDAV, S3 and Azure
// listings into StatInfo entries.
package davxml

import (
	"encoding/xml"
	"errors"
	"io"
	"path"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

const scope = "xml"

// MaxDepth bounds element nesting. Deeper documents are rejected.
const MaxDepth = 200

// Entry is one listed resource. Name is relative to the listed collection.
type Entry struct {
	Name string
	Info types.StatInfo
}

// depthGuard counts open elements and fails once MaxDepth is exceeded.
type depthGuard struct {
	d     *xml.Decoder
	depth int
}

func (g *depthGuard) Token() (xml.Token, error) {
	tok, err := g.d.RawToken()
	if err != nil {
		return nil, err
	}
	switch tok.(type) {
	case xml.StartElement:
		g.depth++
		if g.depth > MaxDepth {
			return nil, daverr.Newf(daverr.ParsingError, scope, "document nesting exceeds %d levels", MaxDepth)
		}
	case xml.EndElement:
		g.depth--
	}
	return tok, nil
}

// decode unmarshals r into v with the nesting guard in place.
func decode(r io.Reader, v any) error {
	raw := xml.NewDecoder(r)
	raw.Strict = false
	dec := xml.NewTokenDecoder(&depthGuard{d: raw})
	if err := dec.Decode(v); err != nil {
		var de *daverr.Error
		if errors.As(err, &de) {
			return de
		}
		if errors.Is(err, io.EOF) {
			return daverr.New(daverr.ParsingError, scope, "empty document")
		}
		return daverr.Wrap(err, daverr.ParsingError, scope, "invalid xml")
	}
	return nil
}

// baseName returns the last path segment of p, ignoring a trailing slash.
func baseName(p string) string {
	p = strings.TrimRight(p, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
