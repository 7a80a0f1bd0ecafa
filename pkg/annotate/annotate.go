// Package annotate draws fused detections onto the analysed image.
package annotate

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	_ "image/jpeg" // decoder registration
	_ "image/png"  // decoder registration
	"io"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/teslashibe/go-ppe/pkg/compliance"
	"github.com/teslashibe/go-ppe/pkg/fusion"
)

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// Colours used for boxes.
var (
	PersonColor     = color.RGBA{33, 150, 243, 255}
	PassColor       = color.RGBA{0, 200, 83, 255}
	FailColor       = color.RGBA{229, 57, 53, 255}
	HybridPassColor = color.RGBA{0, 110, 45, 255}
	HybridFailColor = color.RGBA{140, 28, 28, 255}
)

// Options tunes the drawing.
type Options struct {
	LineWidth float64
	FontSize  float64
}

// DefaultOptions returns the options used by Render.
func DefaultOptions() Options {
	return Options{LineWidth: 3, FontSize: 14}
}

// Render draws every person and equipment box of res over img. Boxes
// meeting minConfidence are green and the rest red; detections that did
// not come from the native detector are darker and dashed.
func Render(img image.Image, res *fusion.Result, minConfidence float64) image.Image {
	return RenderWith(img, res, minConfidence, DefaultOptions())
}

// RenderWith is Render with explicit options.
func RenderWith(img image.Image, res *fusion.Result, minConfidence float64, opts Options) image.Image {
	dc := gg.NewContextForImage(img)
	if res == nil {
		return dc.Image()
	}
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: opts.FontSize}))

	w, h := float64(dc.Width()), float64(dc.Height())
	for _, p := range res.ProtectiveEquipment {
		if p.BoundingBox != nil {
			drawBox(dc, *p.BoundingBox, w, h, PersonColor, false, opts.LineWidth)
			drawLabel(dc, *p.BoundingBox, w, h, PersonColor, fmt.Sprintf("Person %d", p.ID))
		}
		for _, bp := range p.BodyParts {
			for _, d := range bp.EquipmentDetections {
				if d.BoundingBox == nil {
					continue
				}
				c := boxColor(d, minConfidence)
				hybrid := d.DetectionMethod != "" && d.DetectionMethod != fusion.MethodNative
				drawBox(dc, *d.BoundingBox, w, h, c, hybrid, opts.LineWidth)
				drawLabel(dc, *d.BoundingBox, w, h, c, fmt.Sprintf("%s %.0f%%", d.Type, d.Confidence))
			}
		}
	}
	return dc.Image()
}

func boxColor(d fusion.EquipmentDetection, minConfidence float64) color.Color {
	pass := compliance.Passes(d.Confidence, minConfidence)
	hybrid := compliance.TrustOf(d.DetectionMethod) != compliance.TrustHigh
	switch {
	case pass && hybrid:
		return HybridPassColor
	case pass:
		return PassColor
	case hybrid:
		return HybridFailColor
	default:
		return FailColor
	}
}

func drawBox(dc *gg.Context, b fusion.BoundingBox, w, h float64, c color.Color, dashed bool, width float64) {
	dc.Push()
	defer dc.Pop()

	dc.SetColor(c)
	dc.SetLineWidth(width)
	if dashed {
		dc.SetDash(8, 5)
	}
	dc.DrawRectangle(b.Left*w, b.Top*h, b.Width*w, b.Height*h)
	dc.Stroke()
}

func drawLabel(dc *gg.Context, b fusion.BoundingBox, w, h float64, c color.Color, text string) {
	x, y := b.Left*w, b.Top*h
	tw, th := dc.MeasureString(text)
	if y-th-4 < 0 {
		y = (b.Top+b.Height)*h + th + 4
	}

	dc.SetColor(c)
	dc.DrawRectangle(x, y-th-4, tw+6, th+4)
	dc.Fill()
	dc.SetColor(color.White)
	dc.DrawString(text, x+3, y-3)
}

// Decode reads a JPEG or PNG image.
func Decode(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("annotate: decode image: %w", err)
	}
	return img, nil
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return gg.NewContextForImage(img).EncodePNG(w)
}
