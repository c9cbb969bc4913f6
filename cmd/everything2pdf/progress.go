package main

import (
	"fmt"
	"io"

	"github.com/schollz/progressbar/v3"
)

// progressBar renders job progress on the terminal. One step per file plus
// one for assembly.
type progressBar struct {
	bar *progressbar.ProgressBar
}

func newProgressBar(w io.Writer, files int) *progressBar {
	bar := progressbar.NewOptions(
		files+1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription("starting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(w, "\n")
		}),
	)
	return &progressBar{bar: bar}
}

// Update matches the converter progress callback.
func (p *progressBar) Update(current, total int, message string) {
	p.bar.Describe(message)
	_ = p.bar.Set(current)
}

func (p *progressBar) Finish() {
	_ = p.bar.Finish()
}
