package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

// GzipRequestMiddleware decompresses gzip-encoded request bodies so handlers
// can work with plain payloads. Decompression is capped at maxBytes to keep a
// small compressed body from inflating past the handlers' own limits; invalid
// gzip payloads are rejected with a 400 response.
func GzipRequestMiddleware(maxBytes int64) echo.MiddlewareFunc {
	if maxBytes <= 0 {
		maxBytes = maxAudioSize
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &limitedGzipReadCloser{
				reader: io.LimitReader(gr, maxBytes),
				gz:     gr,
				body:   body,
			}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)

			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	if header == "" {
		return false
	}
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

type limitedGzipReadCloser struct {
	reader io.Reader
	gz     *gzip.Reader
	body   io.Closer
}

func (g *limitedGzipReadCloser) Read(p []byte) (int, error) {
	return g.reader.Read(p)
}

func (g *limitedGzipReadCloser) Close() error {
	var err error
	if g.gz != nil {
		err = g.gz.Close()
	}
	if g.body != nil {
		if cerr := g.body.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	return err
}
