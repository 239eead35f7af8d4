package layout

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strconv"
	"strings"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// IntrinsicSize returns the pixel dimensions of an encoded image. PNG, GIF,
// JPEG, BMP, WebP and SVG (from width/height or viewBox) are understood.
func IntrinsicSize(data []byte) (width, height int, err error) {
	if looksLikeSVG(data) {
		return svgSize(data)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return 0, 0, fmt.Errorf("layout: image size: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return 0, 0, fmt.Errorf("layout: %s image has no size: %w", format, ErrNoSize)
	}
	return cfg.Width, cfg.Height, nil
}

func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 512 {
		head = head[:512]
	}
	return bytes.Contains(head, []byte("<svg"))
}

func svgSize(data []byte) (int, int, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	for {
		tok, err := dec.Token()
		if err != nil {
			return 0, 0, fmt.Errorf("layout: svg size: %w", err)
		}
		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "svg" {
			continue
		}
		var w, h float64
		var viewBox string
		for _, a := range se.Attr {
			switch a.Name.Local {
			case "width":
				w, _ = pixels(a.Value)
			case "height":
				h, _ = pixels(a.Value)
			case "viewBox":
				viewBox = a.Value
			}
		}
		if (w == 0 || h == 0) && viewBox != "" {
			f := strings.Fields(strings.ReplaceAll(viewBox, ",", " "))
			if len(f) == 4 {
				w, _ = strconv.ParseFloat(f[2], 64)
				h, _ = strconv.ParseFloat(f[3], 64)
			}
		}
		if w <= 0 || h <= 0 {
			return 0, 0, fmt.Errorf("layout: svg: %w", ErrNoSize)
		}
		return int(w + 0.5), int(h + 0.5), nil
	}
}
