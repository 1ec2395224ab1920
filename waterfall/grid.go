package waterfall

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"
	"time"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	timeFmt        = "2006-01-02T15:04:05"
	gridMarginTop  = 20  // pixels
	gridMarginLeft = 150 // pixels
	gridTickLen    = 10  // pixels
	gridMinStepX   = 100 // pixels
	gridMinStepY   = 20  // pixels
)

var (
	gridColor           = color.RGBA{0, 0, 0, 255}       // black
	gridBackgroundColor = color.RGBA{255, 255, 255, 255} // white

	freqSuffixes = []string{"Hz", "kHz", "MHz", "GHz", "THz"}
)

// GetReadableFreq formats a frequency with the largest fitting SI prefix.
func GetReadableFreq(freq uint64) string {
	exp := 0
	for f := float64(freq); f >= 1000 && exp < len(freqSuffixes)-1; f /= 1000 {
		exp++
	}
	if exp == 0 {
		return fmt.Sprintf("%d Hz", freq)
	}
	return fmt.Sprintf("%.2f %s", float64(freq)/math.Pow(1000, float64(exp)), freqSuffixes[exp])
}

func drawTick(canvas *image.RGBA, start image.Point, length int, horizontal bool) {
	for i := 0; i <= length; i++ {
		if horizontal {
			canvas.SetRGBA(start.X+i, start.Y, gridColor)
		} else {
			canvas.SetRGBA(start.X, start.Y+i, gridColor)
		}
	}
}

func gridStep(size, minStep int) int {
	step := size
	for step/2 >= minStep {
		step /= 2
	}
	return max(step, 1)
}

func label(canvas *image.RGBA, x, y int, s string) {
	d := &font.Drawer{
		Dst:  canvas,
		Src:  image.NewUniform(gridColor),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

// DrawGrid returns a copy of src with frequency labels on top and time labels
// on the left.
func DrawGrid(src *image.RGBA, lowFreq, highFreq uint64, start, end time.Time) *image.RGBA {
	b := src.Bounds()
	canvas := image.NewRGBA(image.Rect(0, 0, b.Dx()+gridMarginLeft, b.Dy()+gridMarginTop))
	draw.Draw(canvas, canvas.Bounds(), &image.Uniform{gridBackgroundColor}, image.Point{}, draw.Src)
	draw.Draw(canvas, image.Rect(gridMarginLeft, gridMarginTop, canvas.Bounds().Max.X, canvas.Bounds().Max.Y), src, b.Min, draw.Src)

	for x := 0; x < b.Dx(); x += gridStep(b.Dx(), gridMinStepX) {
		drawTick(canvas, image.Pt(gridMarginLeft+x, gridMarginTop-gridTickLen), gridTickLen, false)
		freq := lowFreq + uint64(float64(x)*float64(highFreq-lowFreq)/float64(b.Dx()))
		label(canvas, gridMarginLeft+x+5, gridMarginTop-2, GetReadableFreq(freq))
	}

	total := end.Sub(start)
	for y := 0; y < b.Dy(); y += gridStep(b.Dy(), gridMinStepY) {
		drawTick(canvas, image.Pt(gridMarginLeft-gridTickLen, gridMarginTop+y), gridTickLen, true)
		offset := time.Duration(float64(total) * float64(y) / float64(b.Dy())).Truncate(time.Millisecond)
		label(canvas, 5, gridMarginTop+y+5, offset.String())
		label(canvas, 5, gridMarginTop+y+17, start.Add(offset).Format(timeFmt))
	}
	return canvas
}
