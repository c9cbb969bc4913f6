// Package fallback renders office documents without an office suite. It
// extracts plain structure (paragraph text, cell grids, slide text) and lays it
// out into a fresh PDF. The output is a best-effort text dump, not a faithful
// reproduction: no images, no styling.
package fallback

import "strings"

// BlockKind identifies how a Block is laid out.
type BlockKind int

const (
	BlockHeading BlockKind = iota
	BlockParagraph
	BlockTable
	BlockBreak
)

// Block is one unit of extracted content.
type Block struct {
	Kind BlockKind
	Text string
	// Rows holds a rectangular grid for BlockTable; the first row is the header band.
	Rows [][]string
}

// Document is the ordered content extracted from one office file.
type Document struct {
	Blocks []Block
}

func (d *Document) heading(text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockHeading, Text: text})
}

func (d *Document) paragraph(text string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockParagraph, Text: text})
}

func (d *Document) table(rows [][]string) {
	d.Blocks = append(d.Blocks, Block{Kind: BlockTable, Rows: rows})
}

func (d *Document) sectionBreak() {
	d.Blocks = append(d.Blocks, Block{Kind: BlockBreak})
}

// ContentBlocks counts blocks that carry content.
func (d *Document) ContentBlocks() int {
	n := 0
	for _, b := range d.Blocks {
		if b.Kind != BlockBreak {
			n++
		}
	}
	return n
}

// gridRows pads ragged rows to a common width and drops rows with no non-empty cell.
func gridRows(raw [][]string) [][]string {
	width := 0
	for _, r := range raw {
		if len(r) > width {
			width = len(r)
		}
	}
	var out [][]string
	for _, r := range raw {
		empty := true
		for _, c := range r {
			if strings.TrimSpace(c) != "" {
				empty = false
				break
			}
		}
		if empty {
			continue
		}
		row := make([]string, width)
		copy(row, r)
		out = append(out, row)
	}
	return out
}
