package fallback

import (
	"bytes"
	"fmt"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

const sheetHeadingPrefix = "Sheet: "

// extractXLSX emits a heading per sheet followed by its cell grid.
func extractXLSX(path string) (*Document, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open XLSX: %w", err)
	}
	defer f.Close()

	doc := &Document{}
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
		}
		addSheet(doc, sheet, rows)
	}
	return doc, nil
}

// extractXLS reads a legacy binary workbook. The stream is checked and
// repacked before extrame/xls sees it: its OLE reader exits the process on a
// broken sector chain and misreads chains that are not contiguous.
func extractXLS(path string) (doc *Document, err error) {
	stream, err := readWorkbookStream(path)
	if err != nil {
		return nil, err
	}
	packed, err := packWorkbook(stream)
	if err != nil {
		return nil, err
	}

	defer func() {
		if r := recover(); r != nil {
			doc, err = nil, fmt.Errorf("parse XLS: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(packed), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open XLS: %w", err)
	}
	if wb == nil {
		return nil, errNoWorkbook
	}

	doc = &Document{}
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		name := sheet.Name
		if name == "" {
			name = fmt.Sprintf("Sheet%d", i+1)
		}

		var rows [][]string
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheetRow(sheet, r)
			if row == nil {
				rows = append(rows, nil)
				continue
			}
			cells := make([]string, 0, row.LastCol())
			for c := 0; c < row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		addSheet(doc, name, rows)
	}
	return doc, nil
}

// sheetRow returns nil for a row with no record; WorkSheet.Row dereferences
// the missing entry.
func sheetRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func addSheet(doc *Document, name string, raw [][]string) {
	doc.heading(sheetHeadingPrefix + name)
	if rows := gridRows(raw); len(rows) > 0 {
		doc.table(rows)
	}
	doc.sectionBreak()
}
