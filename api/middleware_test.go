package api

import (
	"bytes"
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func gzipBody(t *testing.T, payload string) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write([]byte(payload)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := gw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return &buf
}

func TestGzipRequestMiddlewareDecompresses(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", gzipBody(t, `{"transcript":"call mom"}`))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := GzipRequestMiddleware(0)(func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		seen = string(body)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if seen != `{"transcript":"call mom"}` {
		t.Fatalf("unexpected body: %q", seen)
	}
	if c.Request().Header.Get(echo.HeaderContentEncoding) != "" {
		t.Fatal("content encoding header must be cleared")
	}
}

func TestGzipRequestMiddlewareRejectsInvalidBody(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader("not gzip"))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := GzipRequestMiddleware(0)(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})
	err := handler(c)
	var httpErr *echo.HTTPError
	if err == nil || !errors.As(err, &httpErr) || httpErr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 error, got %v", err)
	}
}

func TestGzipRequestMiddlewareCapsDecompressedSize(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", gzipBody(t, strings.Repeat("a", 1024)))
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var n int
	handler := GzipRequestMiddleware(16)(func(c echo.Context) error {
		body, err := io.ReadAll(c.Request().Body)
		if err != nil {
			return err
		}
		n = len(body)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if n != 16 {
		t.Fatalf("expected body capped at 16 bytes, got %d", n)
	}
}

func TestGzipRequestMiddlewarePassesPlainBodies(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/api/extract", strings.NewReader("plain"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	var seen string
	handler := GzipRequestMiddleware(0)(func(c echo.Context) error {
		body, _ := io.ReadAll(c.Request().Body)
		seen = string(body)
		return c.NoContent(http.StatusOK)
	})
	if err := handler(c); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
	if seen != "plain" {
		t.Fatalf("unexpected body: %q", seen)
	}
}

func TestHasGzipEncoding(t *testing.T) {
	tests := []struct {
		header string
		want   bool
	}{
		{header: "", want: false},
		{header: "gzip", want: true},
		{header: "GZIP", want: true},
		{header: "br, gzip", want: true},
		{header: "br", want: false},
	}
	for _, tt := range tests {
		if got := hasGzipEncoding(tt.header); got != tt.want {
			t.Fatalf("hasGzipEncoding(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
