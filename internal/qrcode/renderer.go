// Package qrcode は出席トークンを読み取り可能なQRコード画像に変換する。
package qrcode

import (
	"encoding/base64"
	"errors"
	"fmt"

	goqrcode "github.com/skip2/go-qrcode"
)

const dataURLPrefix = "data:image/png;base64,"

// Renderer はトークン文字列をPNGのQRコードに変換する。
type Renderer struct {
	size int
}

// NewRenderer はRendererを生成する。sizeは画像の一辺のピクセル数。
func NewRenderer(size int) *Renderer {
	return &Renderer{size: size}
}

// PNG はcontentをエンコードしたPNG画像を返す。
func (r *Renderer) PNG(content string) ([]byte, error) {
	if content == "" {
		return nil, errors.New("qrcode: empty content")
	}
	png, err := goqrcode.Encode(content, goqrcode.Medium, r.size)
	if err != nil {
		return nil, fmt.Errorf("failed to encode qr code: %w", err)
	}
	return png, nil
}

// DataURL はcontentのQRコードを data:image/png;base64,... 形式で返す。
func (r *Renderer) DataURL(content string) (string, error) {
	png, err := r.PNG(content)
	if err != nil {
		return "", err
	}
	return dataURLPrefix + base64.StdEncoding.EncodeToString(png), nil
}
