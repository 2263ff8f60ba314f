package middleware

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"
)

const defaultBodyLimit int64 = 1 << 20

// sizeSuffixes is ordered so two-letter forms match before one-letter ones.
var sizeSuffixes = []struct {
	suffix string
	shift  uint
}{
	{"GB", 30}, {"MB", 20}, {"KB", 10},
	{"G", 30}, {"M", 20}, {"K", 10},
}

// BodyLimit answers 413 once a request body passes limit ("512K", "1M",
// "2GB", or plain bytes). Submissions and care-plan requests are small JSON
// documents, so the API group runs behind it.
func BodyLimit(limit string) echo.MiddlewareFunc {
	maxBytes := parseLimit(limit)
	tooLarge := echo.NewHTTPError(http.StatusRequestEntityTooLarge,
		fmt.Sprintf("Request body exceeds maximum allowed size of %d bytes", maxBytes))

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}
			if req.ContentLength > maxBytes {
				return tooLarge
			}
			// Content-Length may be absent or lie.
			req.Body = &cappedBody{ReadCloser: req.Body, left: maxBytes}
			return next(c)
		}
	}
}

// cappedBody fails every read after more than left bytes have been seen.
type cappedBody struct {
	io.ReadCloser
	left int64
	over bool
}

func (b *cappedBody) Read(p []byte) (int, error) {
	if b.over {
		return 0, errBodyTooLarge()
	}
	// One byte past the cap is enough to detect overflow.
	if int64(len(p)) > b.left+1 {
		p = p[:b.left+1]
	}
	n, err := b.ReadCloser.Read(p)
	b.left -= int64(n)
	if b.left < 0 {
		b.over = true
		return 0, errBodyTooLarge()
	}
	return n, err
}

func errBodyTooLarge() error {
	return echo.NewHTTPError(http.StatusRequestEntityTooLarge, "request body too large")
}

// parseLimit falls back to 1 MB for empty or malformed input.
func parseLimit(s string) int64 {
	s = strings.ToUpper(strings.TrimSpace(s))
	var shift uint
	for _, sfx := range sizeSuffixes {
		if strings.HasSuffix(s, sfx.suffix) {
			s = strings.TrimSuffix(s, sfx.suffix)
			shift = sfx.shift
			break
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n <= 0 {
		return defaultBodyLimit
	}
	return n << shift
}
