package main

/*
This application renders waterfalls for data collected into sqlite by hopper.
*/

import (
	"context"
	"flag"
	"fmt"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/hb9tf/hopper/export"
	"github.com/hb9tf/hopper/waterfall"
)

const timeFmt = "2006-01-02T15:04:05"

// Flags
var (
	sqliteFile   = flag.String("sqliteFile", "/tmp/hopper", "File path of the sqlite DB file to use.")
	source       = flag.String("source", "hackrf", "Source type, e.g. hackrf, rtl_sdr or sim.")
	identifier   = flag.String("identifier", "%", "Identifier of the runs to render, SQL LIKE syntax.")
	startFreq    = flag.Uint64("startFreq", 0, "Select records starting with this frequency in Hz.")
	endFreq      = flag.Uint64("endFreq", math.MaxInt64, "Select records up to this frequency in Hz.")
	startTimeRaw = flag.String("startTime", "2000-01-02T15:04:05", "Select records collected after this time. Format: 2006-01-02T15:04:05")
	endTimeRaw   = flag.String("endTime", "2100-01-02T15:04:05", "Select records collected before this time. Format: 2006-01-02T15:04:05")
	imgPath      = flag.String("imgPath", "/tmp/out.png", "Path where the rendered image should be written to (.png or .jpg).")
	imgWidth     = flag.Int("imgWidth", 0, "Width of output image in pixels, 0 for one pixel per frequency.")
	imgHeight    = flag.Int("imgHeight", 0, "Height of output image in pixels, 0 for one pixel per sweep.")
	addGrid      = flag.Bool("grid", true, "Label the image with frequency and time.")
)

func main() {
	ctx := context.Background()
	// Set defaults for glog flags. Can be overridden via cmdline.
	flag.Set("logtostderr", "false")
	flag.Set("stderrthreshold", "WARNING")
	flag.Set("v", "1")
	// Parse flags globally.
	flag.Parse()

	startTime, err := time.Parse(timeFmt, *startTimeRaw)
	if err != nil {
		glog.Exitf("unable to parse startTime (value: %q, format: %q): %s", *startTimeRaw, timeFmt, err)
	}
	endTime, err := time.Parse(timeFmt, *endTimeRaw)
	if err != nil {
		glog.Exitf("unable to parse endTime (value: %q, format: %q): %s", *endTimeRaw, timeFmt, err)
	}

	db, err := export.OpenSQLite(*sqliteFile)
	if err != nil {
		glog.Exit(err)
	}
	defer db.Close()

	res, err := waterfall.Render(ctx, db, &waterfall.Query{
		Source:     *source,
		Identifier: *identifier,
		FreqLow:    *startFreq,
		FreqHigh:   *endFreq,
		Start:      startTime,
		End:        endTime,
	}, &waterfall.Options{
		Width:  *imgWidth,
		Height: *imgHeight,
		Grid:   *addGrid,
	})
	if err != nil {
		glog.Exitf("unable to render waterfall: %s", err)
	}

	fmt.Println("Selected source metadata:")
	fmt.Printf("  - Low frequency: %s\n", waterfall.GetReadableFreq(res.FreqLow))
	fmt.Printf("  - High frequency: %s\n", waterfall.GetReadableFreq(res.FreqHigh))
	fmt.Printf("  - Start time: %s (%d)\n", res.Start.Format(timeFmt), res.Start.Unix())
	fmt.Printf("  - End time: %s (%d)\n", res.End.Format(timeFmt), res.End.Unix())
	fmt.Printf("  - Duration: %s\n", res.End.Sub(res.Start))
	fmt.Printf("  - Power: %.1f dBFS to %.1f dBFS\n", res.MinDB, res.MaxDB)
	fmt.Printf("Rendered image (%d x %d, %.0f Hz/px, %.2f s/row)\n", res.Width, res.Height, res.HzPerPx, res.SecPerRow)

	f, err := os.Create(*imgPath)
	if err != nil {
		glog.Exitf("unable to create %q: %s", *imgPath, err)
	}
	defer f.Close()
	switch {
	case strings.HasSuffix(*imgPath, ".png"):
		err = png.Encode(f, res.Image)
	case strings.HasSuffix(*imgPath, ".jpg"), strings.HasSuffix(*imgPath, ".jpeg"):
		err = jpeg.Encode(f, res.Image, &jpeg.Options{Quality: jpeg.DefaultQuality})
	default:
		err = fmt.Errorf("unsupported image format, use .png or .jpg")
	}
	if err != nil {
		glog.Exitf("unable to write image to %q: %s", *imgPath, err)
	}
	fmt.Printf("Wrote image to %q\n", *imgPath)
}
