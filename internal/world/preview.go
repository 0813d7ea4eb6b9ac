package world

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

const (
	previewMargin       = 8
	previewMarkerRadius = 3
	previewAmbientLight = 0.2
	defaultPixelsPerM   = 4.0
)

// Marker is a placed object drawn on top of a preview.
type Marker struct {
	Position Vec3
	Hazard   bool
	Category int
}

// PreviewOptions tunes RenderPreview. Zero values fall back to defaults.
type PreviewOptions struct {
	PixelsPerUnit float64
	// Heights inside [BandMin, BandMax] are tinted as spawnable.
	BandMin float64
	BandMax float64
	// Palette holds "#rrggbb" colours for ore categories, indexed modulo its length.
	Palette []string
}

var defaultPalette = []string{
	"#b87333", "#d3d4d5", "#8a8f99", "#c0c0c0",
	"#ffd700", "#3d59ab", "#7fffd4", "#9b111e",
}

// RenderPreview draws a top-down image of the surfaces with their height
// shading and the provided markers.
func RenderPreview(surfaces []Surface, markers []Marker, opts PreviewOptions) (*image.NRGBA, error) {
	if len(surfaces) == 0 {
		return nil, fmt.Errorf("no surfaces to render")
	}
	scale := opts.PixelsPerUnit
	if scale <= 0 {
		scale = defaultPixelsPerM
	}
	palette := opts.Palette
	if len(palette) == 0 {
		palette = defaultPalette
	}

	extent := surfaces[0].Bounds()
	for _, s := range surfaces[1:] {
		extent = extent.Union(s.Bounds())
	}
	width := int(math.Ceil(extent.Width*scale)) + 2*previewMargin
	height := int(math.Ceil(extent.Depth*scale)) + 2*previewMargin
	if width <= 2*previewMargin || height <= 2*previewMargin {
		return nil, fmt.Errorf("invalid preview extent: %+v", extent)
	}
	img := image.NewNRGBA(image.Rect(0, 0, width, height))

	background := color.NRGBA{R: 10, G: 10, B: 18, A: 255}
	draw.Draw(img, img.Bounds(), &image.Uniform{background}, image.Point{}, draw.Src)

	toPixel := func(x, z float64) (int, int) {
		px := previewMargin + int(math.Round((x-extent.Origin.X)*scale))
		py := previewMargin + int(math.Round((z-extent.Origin.Z)*scale))
		return px, py
	}

	for _, s := range surfaces {
		renderSurfacePreview(img, s, extent, scale, opts)
	}

	ordered := make([]Marker, len(markers))
	copy(ordered, markers)
	// Hazards on top so they stay visible in dense ore clusters.
	sort.SliceStable(ordered, func(i, j int) bool {
		return !ordered[i].Hazard && ordered[j].Hazard
	})
	for _, m := range ordered {
		px, py := toPixel(m.Position.X, m.Position.Z)
		if m.Hazard {
			fillPolygon(img, []image.Point{
				{X: px, Y: py - previewMarkerRadius},
				{X: px + previewMarkerRadius, Y: py + previewMarkerRadius},
				{X: px - previewMarkerRadius, Y: py + previewMarkerRadius},
			}, color.NRGBA{R: 230, G: 40, B: 40, A: 255})
			continue
		}
		col, ok := parseHexColor(palette[positiveMod(m.Category, len(palette))])
		if !ok {
			col = color.NRGBA{R: 128, G: 128, B: 128, A: 255}
		}
		fillPolygon(img, []image.Point{
			{X: px, Y: py - previewMarkerRadius},
			{X: px + previewMarkerRadius, Y: py},
			{X: px, Y: py + previewMarkerRadius},
			{X: px - previewMarkerRadius, Y: py},
		}, col)
	}
	return img, nil
}

func renderSurfacePreview(img *image.NRGBA, s Surface, extent Bounds, scale float64, opts PreviewOptions) {
	b := s.Bounds()
	x0 := previewMargin + int(math.Round((b.Origin.X-extent.Origin.X)*scale))
	y0 := previewMargin + int(math.Round((b.Origin.Z-extent.Origin.Z)*scale))
	w := int(math.Ceil(b.Width * scale))
	h := int(math.Ceil(b.Depth * scale))
	if w <= 0 || h <= 0 {
		return
	}

	heights := make([]float64, w*h)
	lo, hi := math.Inf(1), math.Inf(-1)
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			x := b.Origin.X + (float64(px)+0.5)/scale
			z := b.Origin.Z + (float64(py)+0.5)/scale
			v := s.SampleHeight(x, z)
			heights[py*w+px] = v
			lo = math.Min(lo, v)
			hi = math.Max(hi, v)
		}
	}
	span := hi - lo
	if span <= 0 {
		span = 1
	}

	ground := color.NRGBA{R: 120, G: 110, B: 95, A: 255}
	band := color.NRGBA{R: 70, G: 150, B: 70, A: 255}
	bounds := img.Bounds()
	for py := 0; py < h; py++ {
		for px := 0; px < w; px++ {
			v := heights[py*w+px]
			base := ground
			if v >= opts.BandMin && v <= opts.BandMax {
				base = band
			}
			col := applyLighting(base, previewAmbientLight+0.8*(v-lo)/span)
			ix, iy := x0+px, y0+py
			if ix < bounds.Min.X || ix >= bounds.Max.X || iy < bounds.Min.Y || iy >= bounds.Max.Y {
				continue
			}
			img.SetNRGBA(ix, iy, col)
		}
	}
}

// EncodePreview writes img as PNG.
func EncodePreview(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encode preview: %w", err)
	}
	return nil
}

// SavePreview renders and writes a preview PNG to path, creating parent
// directories as needed.
func SavePreview(path string, surfaces []Surface, markers []Marker, opts PreviewOptions) error {
	img, err := RenderPreview(surfaces, markers, opts)
	if err != nil {
		return err
	}
	if err := ensurePreviewDir(filepath.Dir(path)); err != nil {
		return err
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create preview: %w", err)
	}
	defer file.Close()
	return EncodePreview(file, img)
}

func positiveMod(v, n int) int {
	m := v % n
	if m < 0 {
		m += n
	}
	return m
}

func parseHexColor(value string) (color.NRGBA, bool) {
	trimmed := strings.TrimPrefix(strings.TrimSpace(value), "#")
	if len(trimmed) != 6 {
		return color.NRGBA{}, false
	}
	var rgb [3]uint8
	for i := range rgb {
		v, err := strconv.ParseUint(trimmed[i*2:i*2+2], 16, 8)
		if err != nil {
			return color.NRGBA{}, false
		}
		rgb[i] = uint8(v)
	}
	return color.NRGBA{R: rgb[0], G: rgb[1], B: rgb[2], A: 255}, true
}

func applyLighting(base color.NRGBA, factor float64) color.NRGBA {
	factor = clamp(factor, 0, 1)
	r := uint8(math.Round(float64(base.R) * factor))
	g := uint8(math.Round(float64(base.G) * factor))
	b := uint8(math.Round(float64(base.B) * factor))
	return color.NRGBA{R: r, G: g, B: b, A: 255}
}

func clamp(value, lo, hi float64) float64 {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}

func fillPolygon(img *image.NRGBA, pts []image.Point, col color.NRGBA) {
	if len(pts) < 3 {
		return
	}
	minY, maxY := pts[0].Y, pts[0].Y
	for _, p := range pts[1:] {
		minY = min(minY, p.Y)
		maxY = max(maxY, p.Y)
	}
	bounds := img.Bounds()
	minY = max(minY, bounds.Min.Y)
	maxY = min(maxY, bounds.Max.Y-1)

	xs := make([]int, 0, len(pts))
	for y := minY; y <= maxY; y++ {
		xs = xs[:0]
		for i := range pts {
			j := (i + 1) % len(pts)
			x1, y1 := pts[i].X, pts[i].Y
			x2, y2 := pts[j].X, pts[j].Y
			if y1 == y2 || y < min(y1, y2) || y >= max(y1, y2) {
				continue
			}
			xs = append(xs, x1+(y-y1)*(x2-x1)/(y2-y1))
		}
		if len(xs) < 2 {
			continue
		}
		sort.Ints(xs)
		for i := 0; i+1 < len(xs); i += 2 {
			xStart := max(xs[i], bounds.Min.X)
			xEnd := min(xs[i+1], bounds.Max.X-1)
			for x := xStart; x <= xEnd; x++ {
				img.SetNRGBA(x, y, col)
			}
		}
	}
}

func ensurePreviewDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("output directory is empty")
	}
	return os.MkdirAll(dir, 0o755)
}
