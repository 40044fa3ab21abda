package profile

import (
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"account-identity-core/internal/account/domain"
)

func TestDiskImageStore_Store(t *testing.T) {
	root := t.TempDir()
	s := NewDiskImageStore(root, "/uploads")
	s.nowF = func() time.Time { return time.UnixMilli(1700000000000) }

	refs, err := s.Store(context.Background(), "acc-1", pngBytes(t, 300, 200))
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	if refs.DesktopURL != "/uploads/desktop/acc-1_1700000000000.jpg" || refs.MobileURL != "/uploads/mobile/acc-1_1700000000000.jpg" {
		t.Errorf("refs = %+v", refs)
	}
	for variant, size := range map[string]int{"desktop": DesktopSize, "mobile": MobileSize} {
		f, err := os.Open(filepath.Join(root, variant, "acc-1_1700000000000.jpg"))
		if err != nil {
			t.Fatalf("%s: %v", variant, err)
		}
		cfg, err := jpeg.DecodeConfig(f)
		f.Close()
		if err != nil {
			t.Fatalf("%s decode: %v", variant, err)
		}
		if cfg.Width != size || cfg.Height != size {
			t.Errorf("%s = %dx%d, want %dx%d", variant, cfg.Width, cfg.Height, size, size)
		}
	}
}

func TestDiskImageStore_RejectsUndecodable(t *testing.T) {
	s := NewDiskImageStore(t.TempDir(), "/uploads")
	_, err := s.Store(context.Background(), "acc-1", []byte("\x89PNG\r\n\x1a\nbroken"))
	if !errors.Is(err, domain.ErrUnsupportedType) {
		t.Errorf("got %v, want ErrUnsupportedType", err)
	}
}

// withDeclaredSize rewrites the IHDR chunk of a PNG so it claims w x h pixels.
func withDeclaredSize(raw []byte, w, h uint32) []byte {
	out := append([]byte(nil), raw...)
	// signature(8) length(4) "IHDR"(4) width(4) height(4) ... crc after 13 data bytes
	binary.BigEndian.PutUint32(out[16:20], w)
	binary.BigEndian.PutUint32(out[20:24], h)
	binary.BigEndian.PutUint32(out[29:33], crc32.ChecksumIEEE(out[12:29]))
	return out
}

func TestDiskImageStore_RejectsOversizedDimensions(t *testing.T) {
	root := t.TempDir()
	s := NewDiskImageStore(root, "/uploads")
	tests := []struct {
		name string
		w, h uint32
	}{
		{"both sides", 30000, 30000},
		{"wide", MaxImageDimension + 1, 10},
		{"tall", 10, MaxImageDimension + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := withDeclaredSize(pngBytes(t, 2, 2), tt.w, tt.h)
			if err := CheckImage(raw); err != nil {
				t.Fatalf("header should pass the type check: %v", err)
			}
			if _, err := s.Store(context.Background(), "acc-1", raw); !errors.Is(err, domain.ErrUnsupportedType) {
				t.Errorf("got %v, want ErrUnsupportedType", err)
			}
		})
	}
	if _, err := os.Stat(filepath.Join(root, "desktop")); !os.IsNotExist(err) {
		t.Errorf("nothing should be written: %v", err)
	}
}

func TestDiskImageStore_Remove(t *testing.T) {
	root := t.TempDir()
	s := NewDiskImageStore(root, "/uploads")
	s.nowF = func() time.Time { return time.UnixMilli(1700000000000) }
	ctx := context.Background()

	refs, err := s.Store(ctx, "acc-1", pngBytes(t, 20, 20))
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, refs); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	for _, variant := range []string{"desktop", "mobile"} {
		if _, err := os.Stat(filepath.Join(root, variant, "acc-1_1700000000000.jpg")); !os.IsNotExist(err) {
			t.Errorf("%s rendition still present: %v", variant, err)
		}
	}
	if err := s.Remove(ctx, refs); err != nil {
		t.Errorf("second Remove: %v", err)
	}

	keep := filepath.Join(root, "keep.txt")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	foreign := domain.ProfileImage{DesktopURL: "/uploads/desktop/../keep.txt", MobileURL: "https://cdn.example.com/mobile/a.jpg"}
	if err := s.Remove(ctx, foreign); err != nil {
		t.Fatalf("Remove foreign: %v", err)
	}
	def := filepath.Join(root, "desktop", "default.jpg")
	if err := os.WriteFile(def, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := s.Remove(ctx, domain.DefaultProfileImage()); err != nil {
		t.Fatalf("Remove default: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("file outside the rendition dirs removed: %v", err)
	}
	if _, err := os.Stat(def); err != nil {
		t.Errorf("default image removed: %v", err)
	}
}
