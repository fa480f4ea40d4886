package checksum

import (
	"encoding/hex"
	"io"
	"strings"

	"github.com/LeeDigitalWorks/zapdav/pkg/daverr"
	"github.com/LeeDigitalWorks/zapdav/pkg/utils"
)

const scope = "checksum"

// Algorithms lists the digests Compute supports, by canonical name.
var Algorithms = []string{"md5", "sha1", "sha256", "adler32", "crc32", "crc32c", "crc64nvme"}

func poolFor(algo string) (*utils.HasherPool, bool) {
	switch strings.ToLower(algo) {
	case "md5":
		return utils.MD5Pool, true
	case "sha1", "sha":
		return utils.SHA1Pool, true
	case "sha256", "sha-256":
		return utils.SHA256Pool, true
	case "adler32":
		return utils.Adler32Pool, true
	case "crc32":
		return utils.CRC32Pool, true
	case "crc32c":
		return utils.CRC32CPool, true
	case "crc64nvme":
		return utils.CRC64NVMEPool, true
	}
	return nil, false
}

// Supported reports whether Compute knows algo.
func Supported(algo string) bool {
	_, ok := poolFor(algo)
	return ok
}

// Compute streams r through algo and returns the lower-case hex digest.
func Compute(algo string, r io.Reader) (string, error) {
	pool, ok := poolFor(algo)
	if !ok {
		return "", daverr.Newf(daverr.OperationNonSupported, scope, "unsupported checksum algorithm %q", algo)
	}
	h := pool.Get()
	defer pool.Put(h)

	buf := utils.GetBlock(64 << 10)
	defer utils.PutBlock(buf)

	if _, err := io.CopyBuffer(h, r, buf); err != nil {
		return "", daverr.Wrap(err, daverr.SystemError, scope, "read data")
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Equal compares two hex digests, ignoring case and zero padding differences
// such as "9600001" against "09600001".
func Equal(a, b string) bool {
	a = strings.TrimLeft(strings.ToLower(strings.TrimSpace(a)), "0")
	b = strings.TrimLeft(strings.ToLower(strings.TrimSpace(b)), "0")
	return a == b
}
