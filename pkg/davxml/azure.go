package davxml

import (
	"encoding/xml"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/LeeDigitalWorks/zapdav/pkg/types"
)

// EnumerationResults is the Azure List Blobs answer.
type EnumerationResults struct {
	XMLName    xml.Name     `xml:"EnumerationResults"`
	Prefix     string       `xml:"Prefix"`
	Marker     string       `xml:"Marker"`
	NextMarker string       `xml:"NextMarker"`
	Blobs      []AzureBlob  `xml:"Blobs>Blob"`
	Prefixes   []BlobPrefix `xml:"Blobs>BlobPrefix"`
}

type AzureBlob struct {
	Name       string         `xml:"Name"`
	Properties BlobProperties `xml:"Properties"`
}

type BlobProperties struct {
	LastModified  string `xml:"Last-Modified"`
	ContentLength int64  `xml:"Content-Length"`
	ContentMD5    string `xml:"Content-MD5"`
}

type BlobPrefix struct {
	Name string `xml:"Name"`
}

// AzurePage is one decoded List Blobs page.
type AzurePage struct {
	Entries []Entry
	// Count is the number of blobs and prefixes in the page, including a
	// directory placeholder equal to the prefix itself.
	Count int
	// Marker is empty on the last page.
	Marker string
}

// ParseAzureListing decodes an EnumerationResults document. prefix is the
// blob prefix the listing was issued for; it is removed from every name.
func ParseAzureListing(r io.Reader, prefix string) (*AzurePage, error) {
	var res EnumerationResults
	if err := decode(r, &res); err != nil {
		return nil, err
	}

	strip := prefix
	if strip != "" && !strings.HasSuffix(strip, "/") {
		strip += "/"
	}
	if strip == "/" {
		strip = ""
	}

	page := &AzurePage{
		Count:  len(res.Blobs) + len(res.Prefixes),
		Marker: strings.TrimSpace(res.NextMarker),
	}
	for _, b := range res.Blobs {
		name := strings.TrimPrefix(b.Name, strip)
		if name == "" {
			continue
		}
		mtime, _ := http.ParseTime(strings.TrimSpace(b.Properties.LastModified))
		info := types.FileStat(b.Properties.ContentLength, mtime)
		if strings.HasSuffix(name, "/") {
			info = types.DirStat(mtime)
			name = strings.TrimSuffix(name, "/")
		}
		page.Entries = append(page.Entries, Entry{Name: name, Info: info})
	}
	for _, p := range res.Prefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(p.Name, strip), "/")
		if name == "" {
			continue
		}
		page.Entries = append(page.Entries, Entry{Name: name, Info: types.DirStat(time.Time{})})
	}
	return page, nil
}
