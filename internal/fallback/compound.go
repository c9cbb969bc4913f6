package fallback

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"unicode/utf16"

	"github.com/richardlehane/mscfb"
)

// Compound file layout constants (version 3, 512-byte sectors).
const (
	cfbSectorSize   = 512
	cfbFatEntries   = cfbSectorSize / 4
	cfbHeaderDifats = 109
	cfbDirEntrySize = 128
	cfbMiniCutoff   = 4096

	cfbFatSect    uint32 = 0xFFFFFFFD
	cfbEndOfChain uint32 = 0xFFFFFFFE
	cfbFreeSect   uint32 = 0xFFFFFFFF
	cfbNoStream   uint32 = 0xFFFFFFFF

	cfbTypeStream uint8 = 2
	cfbTypeRoot   uint8 = 5
)

// maxWorkbookBytes is the largest stream packWorkbook can address without
// extra DIFAT sectors.
const maxWorkbookBytes = (cfbHeaderDifats*cfbFatEntries - cfbHeaderDifats - 1) * cfbSectorSize

var cfbSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

var errNoWorkbook = errors.New("no Workbook stream in compound file")

// readWorkbookStream returns the BIFF workbook stream of a legacy .xls. Every
// sector chain is walked by mscfb, which reports broken chains as errors.
func readWorkbookStream(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open XLS: %w", err)
	}
	defer f.Close()

	doc, err := mscfb.New(f)
	if err != nil {
		return nil, fmt.Errorf("read compound file: %w", err)
	}

	var book *mscfb.File
	for entry, err := doc.Next(); err == nil; entry, err = doc.Next() {
		if len(entry.Path) != 0 {
			continue
		}
		switch entry.Name {
		case "Workbook":
			book = entry
		case "Book":
			if book == nil {
				book = entry
			}
		}
	}
	if book == nil {
		return nil, errNoWorkbook
	}
	if book.Size <= 0 || book.Size > maxWorkbookBytes {
		return nil, fmt.Errorf("workbook stream size %d out of range", book.Size)
	}

	data, err := io.ReadAll(book)
	if err != nil {
		return nil, fmt.Errorf("read workbook stream: %w", err)
	}
	if int64(len(data)) != book.Size {
		return nil, fmt.Errorf("workbook stream truncated: read %d of %d bytes", len(data), book.Size)
	}
	return data, nil
}

// packWorkbook wraps a workbook stream in a minimal compound file: FAT
// sectors, one directory sector, then the stream in contiguous sectors. The
// stream is zero padded past the mini stream cutoff so no mini FAT is needed.
func packWorkbook(stream []byte) ([]byte, error) {
	if len(stream) > maxWorkbookBytes {
		return nil, fmt.Errorf("workbook stream of %d bytes is too large", len(stream))
	}
	if len(stream) < cfbMiniCutoff {
		padded := make([]byte, cfbMiniCutoff)
		copy(padded, stream)
		stream = padded
	}

	dataSectors := (len(stream) + cfbSectorSize - 1) / cfbSectorSize
	fatSectors := 1
	for fatSectors*cfbFatEntries < fatSectors+1+dataSectors {
		fatSectors++
	}
	dirSector := fatSectors
	firstData := fatSectors + 1
	total := firstData + dataSectors

	out := make([]byte, cfbSectorSize*(total+1))
	le := binary.LittleEndian

	h := out[:cfbSectorSize]
	copy(h, cfbSignature)
	le.PutUint16(h[24:], 0x003E)
	le.PutUint16(h[26:], 3)
	le.PutUint16(h[28:], 0xFFFE)
	le.PutUint16(h[30:], 9)
	le.PutUint16(h[32:], 6)
	le.PutUint32(h[44:], uint32(fatSectors))
	le.PutUint32(h[48:], uint32(dirSector))
	le.PutUint32(h[56:], cfbMiniCutoff)
	le.PutUint32(h[60:], cfbEndOfChain)
	le.PutUint32(h[68:], cfbEndOfChain)
	for i := 0; i < cfbHeaderDifats; i++ {
		v := cfbFreeSect
		if i < fatSectors {
			v = uint32(i)
		}
		le.PutUint32(h[76+4*i:], v)
	}

	sector := func(n int) []byte {
		off := cfbSectorSize * (n + 1)
		return out[off : off+cfbSectorSize]
	}

	fat := make([]uint32, fatSectors*cfbFatEntries)
	for i := range fat {
		fat[i] = cfbFreeSect
	}
	for i := 0; i < fatSectors; i++ {
		fat[i] = cfbFatSect
	}
	fat[dirSector] = cfbEndOfChain
	for i := 0; i < dataSectors; i++ {
		s := firstData + i
		if i == dataSectors-1 {
			fat[s] = cfbEndOfChain
		} else {
			fat[s] = uint32(s + 1)
		}
	}
	for i, v := range fat {
		le.PutUint32(sector(i/cfbFatEntries)[4*(i%cfbFatEntries):], v)
	}

	dir := sector(dirSector)
	putDirEntry(dir[0:cfbDirEntrySize], "Root Entry", cfbTypeRoot, 1, cfbEndOfChain, 0)
	putDirEntry(dir[cfbDirEntrySize:2*cfbDirEntrySize], "Workbook", cfbTypeStream, cfbNoStream, uint32(firstData), uint32(len(stream)))

	copy(out[cfbSectorSize*(firstData+1):], stream)
	return out, nil
}

func putDirEntry(b []byte, name string, typ uint8, child, start, size uint32) {
	le := binary.LittleEndian
	units := utf16.Encode([]rune(name))
	for i, u := range units {
		le.PutUint16(b[2*i:], u)
	}
	le.PutUint16(b[64:], uint16(2*(len(units)+1)))
	b[66] = typ
	b[67] = 1 // black
	le.PutUint32(b[68:], cfbNoStream)
	le.PutUint32(b[72:], cfbNoStream)
	le.PutUint32(b[76:], child)
	le.PutUint32(b[116:], start)
	le.PutUint32(b[120:], size)
}
