package docstyle

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

type StyleType string

const (
	TypeParagraph StyleType = "paragraph"
	TypeCharacter StyleType = "character"
	TypeTable     StyleType = "table"
	TypeNumbering StyleType = "numbering"
)

// Font holds run properties; Size is in points.
type Font struct {
	Name      string  `json:"name,omitempty"`
	Size      float64 `json:"size,omitempty"`
	Bold      *bool   `json:"bold,omitempty"`
	Italic    *bool   `json:"italic,omitempty"`
	Underline string  `json:"underline,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// ParagraphFormat holds paragraph properties; lengths are raw twips.
type ParagraphFormat struct {
	Alignment       string `json:"alignment,omitempty"`
	SpaceBefore     string `json:"spaceBefore,omitempty"`
	SpaceAfter      string `json:"spaceAfter,omitempty"`
	LineSpacing     string `json:"lineSpacing,omitempty"`
	IndentLeft      string `json:"indentLeft,omitempty"`
	IndentRight     string `json:"indentRight,omitempty"`
	FirstLineIndent string `json:"firstLineIndent,omitempty"`
	KeepLines       *bool  `json:"keepLines,omitempty"`
	KeepNext        *bool  `json:"keepNext,omitempty"`
	PageBreakBefore *bool  `json:"pageBreakBefore,omitempty"`
	WidowControl    *bool  `json:"widowControl,omitempty"`
}

type Style struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Type      StyleType       `json:"type"`
	BasedOn   string          `json:"basedOn,omitempty"`
	Default   bool            `json:"default,omitempty"`
	Font      Font            `json:"font"`
	Paragraph ParagraphFormat `json:"paragraph"`

	el *etree.Element
}

// ListFormat is the first level number format of an abstract numbering definition.
type ListFormat struct {
	ID     string `json:"id"`
	Format string `json:"format"`
}

// PageSetup is the page size, orientation and margins of a section.
type PageSetup struct {
	Width       string            `json:"width,omitempty"`
	Height      string            `json:"height,omitempty"`
	Orientation string            `json:"orientation"`
	Margins     map[string]string `json:"margins,omitempty"`

	size    *etree.Element
	margins *etree.Element
}

// TemplateStyles is everything extracted from a template document.
type TemplateStyles struct {
	Paragraph []*Style     `json:"paragraph"`
	Character []*Style     `json:"character"`
	Table     []*Style     `json:"table"`
	Lists     []ListFormat `json:"lists"`
	Page      *PageSetup   `json:"page,omitempty"`
}

// Mappable returns paragraph, character and table styles in that order.
func (t *TemplateStyles) Mappable() []*Style {
	all := make([]*Style, 0, len(t.Paragraph)+len(t.Character)+len(t.Table))
	all = append(all, t.Paragraph...)
	all = append(all, t.Character...)
	return append(all, t.Table...)
}

// ExtractTemplate reads styles, list formats and the first section's page setup.
func ExtractTemplate(path string) (*TemplateStyles, error) {
	slog.Info("loading template", "path", path)
	pkg, err := openDocx(path)
	if err != nil {
		return nil, err
	}
	return extractTemplate(pkg)
}

func extractTemplate(pkg *docx) (*TemplateStyles, error) {
	styles, err := loadStyles(pkg)
	if err != nil {
		return nil, err
	}

	result := &TemplateStyles{}
	for _, s := range styles {
		switch s.Type {
		case TypeParagraph:
			result.Paragraph = append(result.Paragraph, s)
		case TypeCharacter:
			result.Character = append(result.Character, s)
		case TypeTable:
			result.Table = append(result.Table, s)
		}
	}

	numbering, err := pkg.document(numberingPart)
	if err != nil {
		return nil, err
	}
	if numbering != nil {
		result.Lists = readListFormats(numbering)
	}

	doc, err := pkg.document(documentPart)
	if err != nil {
		return nil, err
	}
	result.Page = readPageSetup(doc)

	slog.Info("template styles extracted",
		"paragraph", len(result.Paragraph),
		"character", len(result.Character),
		"table", len(result.Table),
		"lists", len(result.Lists),
		"page", result.Page != nil)
	return result, nil
}

// loadStyles returns the styles of a package; a package without styles has none.
func loadStyles(pkg *docx) ([]*Style, error) {
	doc, err := pkg.document(stylesPart)
	if err != nil || doc == nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, nil
	}

	var styles []*Style
	for _, el := range root.SelectElements("w:style") {
		styles = append(styles, readStyle(el))
	}
	return styles, nil
}

func readStyle(el *etree.Element) *Style {
	s := &Style{
		ID:      el.SelectAttrValue("w:styleId", ""),
		Type:    StyleType(el.SelectAttrValue("w:type", string(TypeParagraph))),
		Default: isOn(el.SelectAttrValue("w:default", "0")),
		el:      el,
	}
	s.Name = childVal(el, "w:name")
	if s.Name == "" {
		s.Name = s.ID
	}
	s.BasedOn = childVal(el, "w:basedOn")
	s.Font = readFont(el.SelectElement("w:rPr"))
	s.Paragraph = readParagraphFormat(el.SelectElement("w:pPr"))
	return s
}

func readFont(rPr *etree.Element) Font {
	var f Font
	if rPr == nil {
		return f
	}
	if fonts := rPr.SelectElement("w:rFonts"); fonts != nil {
		for _, key := range []string{"w:ascii", "w:hAnsi", "w:eastAsia", "w:cs"} {
			if name := fonts.SelectAttrValue(key, ""); name != "" {
				f.Name = name
				break
			}
		}
	}
	if sz := childVal(rPr, "w:sz"); sz != "" {
		if halfPoints, err := strconv.ParseFloat(sz, 64); err == nil {
			f.Size = halfPoints / 2
		}
	}
	f.Bold = onOff(rPr.SelectElement("w:b"))
	f.Italic = onOff(rPr.SelectElement("w:i"))
	if u := rPr.SelectElement("w:u"); u != nil {
		f.Underline = u.SelectAttrValue("w:val", "single")
	}
	f.Color = childVal(rPr, "w:color")
	return f
}

func readParagraphFormat(pPr *etree.Element) ParagraphFormat {
	var p ParagraphFormat
	if pPr == nil {
		return p
	}
	p.Alignment = childVal(pPr, "w:jc")
	if spacing := pPr.SelectElement("w:spacing"); spacing != nil {
		p.SpaceBefore = spacing.SelectAttrValue("w:before", "")
		p.SpaceAfter = spacing.SelectAttrValue("w:after", "")
		p.LineSpacing = spacing.SelectAttrValue("w:line", "")
	}
	if ind := pPr.SelectElement("w:ind"); ind != nil {
		p.IndentLeft = firstAttr(ind, "w:left", "w:start")
		p.IndentRight = firstAttr(ind, "w:right", "w:end")
		p.FirstLineIndent = ind.SelectAttrValue("w:firstLine", "")
		if hanging := ind.SelectAttrValue("w:hanging", ""); hanging != "" {
			p.FirstLineIndent = "-" + hanging
		}
	}
	p.KeepLines = onOff(pPr.SelectElement("w:keepLines"))
	p.KeepNext = onOff(pPr.SelectElement("w:keepNext"))
	p.PageBreakBefore = onOff(pPr.SelectElement("w:pageBreakBefore"))
	p.WidowControl = onOff(pPr.SelectElement("w:widowControl"))
	return p
}

func readListFormats(doc *etree.Document) []ListFormat {
	root := doc.Root()
	if root == nil {
		return nil
	}
	var lists []ListFormat
	for _, abstract := range root.SelectElements("w:abstractNum") {
		format := ""
		if numFmt := abstract.FindElement(".//w:numFmt"); numFmt != nil {
			format = numFmt.SelectAttrValue("w:val", "")
		}
		lists = append(lists, ListFormat{
			ID:     abstract.SelectAttrValue("w:abstractNumId", ""),
			Format: format,
		})
	}
	return lists
}

// readPageSetup returns the setup of the first section in document order.
func readPageSetup(doc *etree.Document) *PageSetup {
	root := doc.Root()
	if root == nil {
		return nil
	}
	sect := root.FindElement(".//w:sectPr")
	if sect == nil {
		return nil
	}
	setup := &PageSetup{Orientation: "portrait", Margins: map[string]string{}}
	if size := sect.SelectElement("w:pgSz"); size != nil {
		setup.size = size
		setup.Width = size.SelectAttrValue("w:w", "")
		setup.Height = size.SelectAttrValue("w:h", "")
		setup.Orientation = size.SelectAttrValue("w:orient", "portrait")
	}
	if margins := sect.SelectElement("w:pgMar"); margins != nil {
		setup.margins = margins
		for _, a := range margins.Attr {
			setup.Margins[a.Key] = a.Value
		}
	}
	if setup.size == nil && setup.margins == nil {
		return nil
	}
	return setup
}

func childVal(el *etree.Element, tag string) string {
	child := el.SelectElement(tag)
	if child == nil {
		return ""
	}
	return child.SelectAttrValue("w:val", "")
}

func firstAttr(el *etree.Element, keys ...string) string {
	for _, key := range keys {
		if v := el.SelectAttrValue(key, ""); v != "" {
			return v
		}
	}
	return ""
}

// onOff reads an OOXML toggle; a present element without a value is on.
func onOff(el *etree.Element) *bool {
	if el == nil {
		return nil
	}
	v := isOn(el.SelectAttrValue("w:val", "true"))
	return &v
}

func isOn(v string) bool {
	switch strings.ToLower(v) {
	case "1", "true", "on":
		return true
	default:
		return false
	}
}
