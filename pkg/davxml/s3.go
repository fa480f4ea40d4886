package davxml

import (
	"encoding/xml"
	"io"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// ListBucketResult is the S3 ListObjects (v1) answer.
type ListBucketResult struct {
	XMLName        xml.Name        `xml:"ListBucketResult"`
	Name           string          `xml:"Name"`
	Prefix         string          `xml:"Prefix"`
	Marker         string          `xml:"Marker"`
	Delimiter      string          `xml:"Delimiter"`
	MaxKeys        int             `xml:"MaxKeys"`
	IsTruncated    bool            `xml:"IsTruncated"`
	NextMarker     string          `xml:"NextMarker"`
	Contents       []ObjectContent `xml:"Contents"`
	CommonPrefixes []CommonPrefix  `xml:"CommonPrefixes"`
}

// ObjectContent is one key of a listing.
type ObjectContent struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
}

// CommonPrefix is a rolled-up "directory" when a delimiter is used.
type CommonPrefix struct {
	Prefix string `xml:"Prefix"`
}

// S3Page is one decoded listing page.
type S3Page struct {
	Entries []Entry
	// Count is the number of keys and prefixes in the page, including the
	// directory marker equal to the prefix itself.
	Count     int
	Truncated bool
	// Marker continues the listing when Truncated.
	Marker string
}

// ParseS3Listing decodes a ListBucketResult. Names are made relative to
// the listing prefix and the directory marker key is skipped.
func ParseS3Listing(r io.Reader) (*S3Page, error) {
	var res ListBucketResult
	if err := decode(r, &res); err != nil {
		return nil, err
	}

	page := &S3Page{
		Count:     len(res.Contents) + len(res.CommonPrefixes),
		Truncated: res.IsTruncated,
		Marker:    res.NextMarker,
	}
	prefix := res.Prefix
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix = ""
	}

	for _, c := range res.Contents {
		if c.Key == res.Prefix && strings.HasSuffix(c.Key, "/") {
			continue
		}
		name := strings.TrimPrefix(c.Key, prefix)
		mtime, _ := time.Parse(time.RFC3339Nano, strings.TrimSpace(c.LastModified))
		info := types.FileStat(c.Size, mtime)
		if strings.HasSuffix(name, "/") {
			info = types.DirStat(mtime)
			name = strings.TrimSuffix(name, "/")
		}
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, Entry{Name: name, Info: info})
	}
	for _, p := range res.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p.Prefix, prefix), "/")
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, Entry{Name: name, Info: types.DirStat(time.Time{})})
	}
	if res.IsTruncated && res.NextMarker == "" && len(res.Contents) > 0 {
		// v1 listings without a delimiter omit NextMarker; continue after the last key
		page.Marker = res.Contents[len(res.Contents)-1].Key
	}
	return page, nil
}
