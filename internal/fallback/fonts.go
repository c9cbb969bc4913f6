package fallback

import (
	"os"
	"strings"
)

// fontCandidates are Unicode TTF fonts commonly present on desktop systems,
// CJK coverage first. Collections (.ttc) are not listed: gofpdf reads plain
// TrueType only.
var fontCandidates = []string{
	"/usr/share/fonts/truetype/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/droid/DroidSansFallbackFull.ttf",
	"/usr/share/fonts/truetype/noto/NotoSans-Regular.ttf",
	"/usr/share/fonts/noto/NotoSans-Regular.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/dejavu/DejaVuSans.ttf",
	"/usr/share/fonts/TTF/DejaVuSans.ttf",
	`C:\Windows\Fonts\simhei.ttf`,
	`C:\Windows\Fonts\arialuni.ttf`,
	"/Library/Fonts/Arial Unicode.ttf",
	"/System/Library/Fonts/Supplemental/Arial Unicode.ttf",
}

// FindFont returns the first readable .ttf among extra then the built-in
// candidates, or "" when none exists.
func FindFont(extra []string) string {
	for _, list := range [][]string{extra, fontCandidates} {
		for _, p := range list {
			p = strings.TrimSpace(p)
			if p == "" || !strings.HasSuffix(strings.ToLower(p), ".ttf") {
				continue
			}
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p
			}
		}
	}
	return ""
}
