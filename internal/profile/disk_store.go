package profile

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"account-identity-core/internal/account/domain"
)

// Rendition sizes in pixels; both are square.
const (
	DesktopSize = 170
	MobileSize  = 110
)

// MaxImageDimension bounds the width and height an upload may declare. Larger images are refused
// before their pixels are decoded.
const MaxImageDimension = 8000

var variants = []string{"desktop", "mobile"}

// DiskImageStore writes square JPEG renditions under Root and returns URLs under URLPrefix.
// Files land in Root/desktop and Root/mobile.
type DiskImageStore struct {
	Root      string
	URLPrefix string
	Quality   int
	nowF      func() time.Time
}

// NewDiskImageStore returns a store rooted at root serving from urlPrefix (e.g. "/uploads").
func NewDiskImageStore(root, urlPrefix string) *DiskImageStore {
	return &DiskImageStore{Root: root, URLPrefix: urlPrefix, Quality: 90, nowF: time.Now}
}

// Store implements ImageStore.
func (s *DiskImageStore) Store(ctx context.Context, ownerID string, raw []byte) (domain.ProfileImage, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return domain.ProfileImage{}, fmt.Errorf("%w: %v", domain.ErrUnsupportedType, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || cfg.Width > MaxImageDimension || cfg.Height > MaxImageDimension {
		return domain.ProfileImage{}, fmt.Errorf("%w: %dx%d exceeds %d pixels per side", domain.ErrUnsupportedType, cfg.Width, cfg.Height, MaxImageDimension)
	}
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return domain.ProfileImage{}, fmt.Errorf("%w: %v", domain.ErrUnsupportedType, err)
	}
	name := fmt.Sprintf("%s_%d.jpg", ownerID, s.nowF().UnixMilli())
	desktop, err := s.write(ctx, "desktop", name, cover(src, DesktopSize))
	if err != nil {
		return domain.ProfileImage{}, err
	}
	mobile, err := s.write(ctx, "mobile", name, cover(src, MobileSize))
	if err != nil {
		return domain.ProfileImage{}, err
	}
	return domain.ProfileImage{DesktopURL: desktop, MobileURL: mobile}, nil
}

// Remove implements ImageStore. The bundled default image and URLs outside URLPrefix are left
// alone. A rendition that is already gone is not an error.
func (s *DiskImageStore) Remove(ctx context.Context, refs domain.ProfileImage) error {
	for i, u := range []string{refs.DesktopURL, refs.MobileURL} {
		if err := ctx.Err(); err != nil {
			return err
		}
		if u == domain.DefaultDesktopImageURL || u == domain.DefaultMobileImageURL {
			continue
		}
		name, ok := s.fileName(variants[i], u)
		if !ok {
			continue
		}
		if err := os.Remove(filepath.Join(s.Root, variants[i], name)); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s image: %w", variants[i], err)
		}
	}
	return nil
}

// fileName maps a URL produced by write back to its file name.
func (s *DiskImageStore) fileName(variant, url string) (string, bool) {
	prefix := s.URLPrefix + "/" + variant + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	name := strings.TrimPrefix(url, prefix)
	if name == "" || name == "." || name == ".." || name != path.Base(name) {
		return "", false
	}
	return name, true
}

func (s *DiskImageStore) write(ctx context.Context, variant, name string, img image.Image) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	dir := filepath.Join(s.Root, variant)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create image dir: %w", err)
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.Quality}); err != nil {
		return "", fmt.Errorf("encode %s image: %w", variant, err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("write %s image: %w", variant, err)
	}
	return s.URLPrefix + "/" + variant + "/" + name, nil
}

// cover scales src to fill a size x size square and crops the overflow around the center.
func cover(src image.Image, size int) image.Image {
	b := src.Bounds()
	side := b.Dx()
	if b.Dy() < side {
		side = b.Dy()
	}
	x0 := b.Min.X + (b.Dx()-side)/2
	y0 := b.Min.Y + (b.Dy()-side)/2
	crop := image.Rect(x0, y0, x0+side, y0+side)
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, crop, draw.Src, nil)
	return dst
}
