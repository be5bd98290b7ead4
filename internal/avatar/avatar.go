// Package avatar はアバター画像のアップロード検証と正規化を提供する。
package avatar

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // JPEGデコーダを登録
	"image/png"
	"regexp"

	"golang.org/x/image/draw"

	"github.com/hitoshi/taskman/internal/model"
)

const (
	// DefaultMaxBytes はアップロード可能な画像の最大バイト数。
	DefaultMaxBytes int64 = 1_000_000
	// DefaultSize は正規化後の画像の一辺のピクセル数。
	DefaultSize = 250
	// MaxPixels はデコードを許可する画像の最大ピクセル数。
	// 圧縮率の高い画像はバイト数が小さくても巨大な画素バッファを要求するため、ヘッダの寸法で判定する。
	MaxPixels = 4096 * 4096
)

// ErrUnsupportedImage は画像の内容がJPEGでもPNGでもない場合に返す。
var ErrUnsupportedImage = errors.New("unsupported image format")

// allowedFilename はアップロード時の元ファイル名に許可する拡張子。
var allowedFilename = regexp.MustCompile(`\.(jpg|jpeg|png)$`)

// ValidateUpload はアップロードされたファイルのサイズと拡張子を検証する。
// 画像のデコードより前に呼び出す。
func ValidateUpload(filename string, size, maxBytes int64) error {
	if size > maxBytes {
		return model.NewAvatarTooLargeError(maxBytes)
	}
	if !allowedFilename.MatchString(filename) {
		return model.NewInvalidAvatarError()
	}
	return nil
}

// Processor はアップロード画像を正方形のPNGに正規化する。
type Processor struct {
	size int
}

// NewProcessor はProcessorを生成する。size が0以下の場合はDefaultSizeを使う。
func NewProcessor(size int) *Processor {
	if size <= 0 {
		size = DefaultSize
	}
	return &Processor{size: size}
}

// Process は画像の寸法を検証してからデコードし、中央を正方形に切り出して size×size に縮小し、PNGで返す。
func (p *Processor) Process(data []byte) ([]byte, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}
	if format != "jpeg" && format != "png" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, format)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 || int64(cfg.Width)*int64(cfg.Height) > MaxPixels {
		return nil, fmt.Errorf("%w: %dx%d exceeds pixel limit", ErrUnsupportedImage, cfg.Width, cfg.Height)
	}

	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedImage, err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, p.size, p.size))
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, centerSquare(src.Bounds()), draw.Src, nil)

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode avatar: %w", err)
	}
	return buf.Bytes(), nil
}

// centerSquare は矩形の中央から切り出せる最大の正方形を返す。
func centerSquare(r image.Rectangle) image.Rectangle {
	side := r.Dx()
	if r.Dy() < side {
		side = r.Dy()
	}
	x0 := r.Min.X + (r.Dx()-side)/2
	y0 := r.Min.Y + (r.Dy()-side)/2
	return image.Rect(x0, y0, x0+side, y0+side)
}
