package source

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
)

func encodeJPEG(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{G: 255, A: 255})
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("jpeg.Encode failed: %v", err)
	}
	return buf.Bytes()
}

func TestHTTPSource_Next(t *testing.T) {
	frame := encodeJPEG(t, 64, 48)
	var status atomic.Int32
	status.Store(http.StatusOK)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(int(status.Load()))
		w.Write(frame)
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL+"/capture", nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	first, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if first.Width != 64 || first.Height != 48 {
		t.Errorf("Expected 64x48, got %dx%d", first.Width, first.Height)
	}

	second, err := s.Next(context.Background())
	if err != nil {
		t.Fatalf("Next failed: %v", err)
	}
	if second.Seq <= first.Seq {
		t.Errorf("Expected increasing seq, got %d then %d", first.Seq, second.Seq)
	}

	status.Store(http.StatusServiceUnavailable)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrReadFailure) {
		t.Errorf("Expected ErrReadFailure on 503, got %v", err)
	}
}

func TestHTTPSource_RejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("<html>camera busy</html>"))
	}))
	defer srv.Close()

	s := NewHTTPSource(srv.URL, nil)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrReadFailure) {
		t.Errorf("Expected ErrReadFailure, got %v", err)
	}
}

func TestHTTPSource_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	s := NewHTTPSource(url, nil)
	if _, err := s.Next(context.Background()); !errors.Is(err, ErrReadFailure) {
		t.Errorf("Expected ErrReadFailure, got %v", err)
	}
}

func TestDirSource_LoopsInNameOrder(t *testing.T) {
	dir := t.TempDir()
	for name, width := range map[string]int{"b.jpg": 20, "a.jpg": 10, "c.png.txt": 99} {
		data := encodeJPEG(t, width, 8)
		if err := os.WriteFile(filepath.Join(dir, name), data, 0644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	s := NewDirSource(dir, nil)
	if err := s.Open(context.Background()); err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer s.Close()

	var widths []int
	for i := 0; i < 4; i++ {
		sample, err := s.Next(context.Background())
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if sample.Seq != uint64(i+1) {
			t.Errorf("Expected seq %d, got %d", i+1, sample.Seq)
		}
		widths = append(widths, sample.Width)
	}

	want := []int{10, 20, 10, 20}
	for i := range want {
		if widths[i] != want[i] {
			t.Fatalf("Expected widths %v, got %v", want, widths)
		}
	}
}

func TestDirSource_EmptyIsUnavailable(t *testing.T) {
	s := NewDirSource(t.TempDir(), nil)
	if err := s.Open(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}

	missing := NewDirSource(filepath.Join(t.TempDir(), "nope"), nil)
	if err := missing.Open(context.Background()); !errors.Is(err, ErrDeviceUnavailable) {
		t.Errorf("Expected ErrDeviceUnavailable, got %v", err)
	}
}
