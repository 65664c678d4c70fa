package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// DecompressRequests returns middleware that inflates gzip-encoded request
// bodies before they reach a handler. Command batches carrying rich-text
// notes shrink considerably under gzip, so clients are encouraged to send
// them compressed. A Content-Encoding of gzip with a body that is not valid
// gzip is a 400.
func DecompressRequests() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !gzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			raw := req.Body
			zr, err := gzip.NewReader(raw)
			if err != nil {
				_ = raw.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "body is not valid gzip")
			}

			req.Body = inflatedBody{zr: zr, raw: raw}
			// Length of the inflated stream is unknown.
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

// gzipEncoded reports whether a Content-Encoding header names gzip. The
// header is a comma-separated list; "x-gzip" is the legacy alias for the
// same coding.
func gzipEncoded(header string) bool {
	for header != "" {
		var coding string
		coding, header, _ = strings.Cut(header, ",")
		switch strings.ToLower(strings.TrimSpace(coding)) {
		case "gzip", "x-gzip":
			return true
		}
	}
	return false
}

// inflatedBody reads the decompressed stream and closes both the gzip
// reader and the original request body.
type inflatedBody struct {
	zr  *gzip.Reader
	raw io.Closer
}

func (b inflatedBody) Read(p []byte) (int, error) { return b.zr.Read(p) }

func (b inflatedBody) Close() error {
	err := b.zr.Close()
	if cerr := b.raw.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
