package docstyle

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"

	"github.com/beevik/etree"

	"github.com/jo-hoe/ocrdesk/internal/fileutil"
)

const (
	documentPart  = "word/document.xml"
	stylesPart    = "word/styles.xml"
	numberingPart = "word/numbering.xml"
)

type part struct {
	header zip.FileHeader
	data   []byte
}

// docx holds every part of a word package in archive order.
type docx struct {
	parts []*part
	xml   map[string]*etree.Document
}

func openDocx(path string) (*docx, error) {
	reader, err := zip.OpenReader(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = reader.Close() }()

	d := &docx{xml: make(map[string]*etree.Document)}
	for _, f := range reader.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open part %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read part %s: %w", f.Name, err)
		}
		d.parts = append(d.parts, &part{header: f.FileHeader, data: data})
	}
	if d.find(documentPart) == nil {
		return nil, fmt.Errorf("%s is not a word document: missing %s", path, documentPart)
	}
	return d, nil
}

func (d *docx) find(name string) *part {
	for _, p := range d.parts {
		if p.header.Name == name {
			return p
		}
	}
	return nil
}

// document parses a part once and returns the cached tree; nil when the part is absent.
func (d *docx) document(name string) (*etree.Document, error) {
	if doc, ok := d.xml[name]; ok {
		return doc, nil
	}
	p := d.find(name)
	if p == nil {
		return nil, nil
	}
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(p.data); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", name, err)
	}
	d.xml[name] = doc
	return doc, nil
}

func (d *docx) save(path string) error {
	for name, doc := range d.xml {
		data, err := doc.WriteToBytes()
		if err != nil {
			return fmt.Errorf("failed to serialize %s: %w", name, err)
		}
		d.find(name).data = data
	}

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, p := range d.parts {
		fw, err := w.CreateHeader(&zip.FileHeader{
			Name:     p.header.Name,
			Method:   p.header.Method,
			Modified: p.header.Modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add part %s: %w", p.header.Name, err)
		}
		if _, err := fw.Write(p.data); err != nil {
			return fmt.Errorf("failed to write part %s: %w", p.header.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finish archive: %w", err)
	}

	return fileutil.WriteFile(path, buf.Bytes())
}
