// Package ooxml reads parts out of Office Open XML packages (docx, pptx).
package ooxml

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"strings"
)

// Relationship is one entry of a .rels part.
type Relationship struct {
	ID     string `xml:"Id,attr"`
	Type   string `xml:"Type,attr"`
	Target string `xml:"Target,attr"`
}

type relationships struct {
	XMLName       xml.Name       `xml:"Relationships"`
	Relationships []Relationship `xml:"Relationship"`
}

// Package is an opened OOXML zip.
type Package struct {
	zr *zip.ReadCloser
}

// Open opens the OOXML package at path.
func Open(path string) (*Package, error) {
	zr, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("open package: %w", err)
	}
	return &Package{zr: zr}, nil
}

// Close releases the underlying zip.
func (p *Package) Close() error { return p.zr.Close() }

// Has reports whether the package contains a part called name.
func (p *Package) Has(name string) bool {
	for _, f := range p.zr.File {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Names lists every part in the package in archive order.
func (p *Package) Names() []string {
	out := make([]string, 0, len(p.zr.File))
	for _, f := range p.zr.File {
		out = append(out, f.Name)
	}
	return out
}

// Part opens the named part for reading.
func (p *Package) Part(name string) (io.ReadCloser, error) {
	for _, f := range p.zr.File {
		if f.Name == name {
			return f.Open()
		}
	}
	return nil, fmt.Errorf("part %q not found in package", name)
}

// Relationships parses the .rels part belonging to partName, keyed by Id.
// A missing .rels part yields an empty map.
func (p *Package) Relationships(partName string) (map[string]Relationship, error) {
	rc, err := p.Part(RelsPathFor(partName))
	if err != nil {
		return map[string]Relationship{}, nil
	}
	defer rc.Close()

	var rels relationships
	if err := xml.NewDecoder(rc).Decode(&rels); err != nil {
		return nil, fmt.Errorf("decode relationships: %w", err)
	}
	out := make(map[string]Relationship, len(rels.Relationships))
	for _, r := range rels.Relationships {
		out[r.ID] = r
	}
	return out, nil
}

// RelsPathFor returns the .rels part path for partName.
func RelsPathFor(partName string) string {
	dir, base := path.Split(partName)
	return dir + "_rels/" + base + ".rels"
}

// ResolveTarget resolves a relationship target relative to the part that owns it.
func ResolveTarget(partName, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	return path.Join(path.Dir(partName), target)
}
