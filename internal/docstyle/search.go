package docstyle

import (
	"log/slog"
	"strings"

	"github.com/beevik/etree"
)

// TextMatch is a paragraph containing the searched text with its effective style.
type TextMatch struct {
	// Kind is "paragraph" for body paragraphs and "table" for paragraphs in table cells.
	Kind  string `json:"kind"`
	Index int    `json:"index"`
	Text  string `json:"text"`
	Style Style  `json:"style"`
}

// FindStylesByText lists body and table paragraphs containing needle.
func FindStylesByText(path, needle string) ([]TextMatch, error) {
	pkg, err := openDocx(path)
	if err != nil {
		return nil, err
	}
	styles, err := loadStyles(pkg)
	if err != nil {
		return nil, err
	}
	doc, err := pkg.document(documentPart)
	if err != nil {
		return nil, err
	}
	root := doc.Root()
	if root == nil {
		return nil, nil
	}
	body := root.SelectElement("w:body")
	if body == nil {
		return nil, nil
	}

	set := newStyleSet(styles)
	var matches []TextMatch
	collect := func(kind string, index int, p *etree.Element) {
		text := paragraphText(p)
		if !strings.Contains(text, needle) {
			return
		}
		match := TextMatch{Kind: kind, Index: index, Text: text}
		if style := set.paragraphStyle(p); style != nil {
			match.Style = set.effective(style)
		}
		matches = append(matches, match)
	}

	for i, p := range body.SelectElements("w:p") {
		collect("paragraph", i, p)
	}
	for i, tbl := range body.SelectElements("w:tbl") {
		for _, p := range tbl.FindElements(".//w:tc/w:p") {
			collect("table", i, p)
		}
	}
	slog.Debug("searched styles by text", "path", path, "needle", needle, "matches", len(matches))
	return matches, nil
}

func paragraphText(p *etree.Element) string {
	var b strings.Builder
	for _, t := range p.FindElements(".//w:t") {
		b.WriteString(t.Text())
	}
	return b.String()
}

type styleSet struct {
	byID             map[string]*Style
	defaultParagraph *Style
}

func newStyleSet(styles []*Style) *styleSet {
	set := &styleSet{byID: make(map[string]*Style, len(styles))}
	for _, s := range styles {
		set.byID[s.ID] = s
		if s.Default && s.Type == TypeParagraph && set.defaultParagraph == nil {
			set.defaultParagraph = s
		}
	}
	return set
}

// paragraphStyle resolves the paragraph's style, falling back to the default paragraph style.
func (s *styleSet) paragraphStyle(p *etree.Element) *Style {
	if pPr := p.SelectElement("w:pPr"); pPr != nil {
		if id := childVal(pPr, "w:pStyle"); id != "" {
			if style, ok := s.byID[id]; ok {
				return style
			}
		}
	}
	return s.defaultParagraph
}

// effective merges properties inherited through basedOn into a copy of style.
func (s *styleSet) effective(style *Style) Style {
	result := *style
	seen := map[string]bool{style.ID: true}
	for parent := s.byID[style.BasedOn]; parent != nil && !seen[parent.ID]; parent = s.byID[parent.BasedOn] {
		seen[parent.ID] = true
		mergeFont(&result.Font, parent.Font)
		mergeParagraph(&result.Paragraph, parent.Paragraph)
	}
	return result
}

func mergeFont(dst *Font, src Font) {
	if dst.Name == "" {
		dst.Name = src.Name
	}
	if dst.Size == 0 {
		dst.Size = src.Size
	}
	if dst.Bold == nil {
		dst.Bold = src.Bold
	}
	if dst.Italic == nil {
		dst.Italic = src.Italic
	}
	if dst.Underline == "" {
		dst.Underline = src.Underline
	}
	if dst.Color == "" {
		dst.Color = src.Color
	}
}

func mergeParagraph(dst *ParagraphFormat, src ParagraphFormat) {
	mergeString(&dst.Alignment, src.Alignment)
	mergeString(&dst.SpaceBefore, src.SpaceBefore)
	mergeString(&dst.SpaceAfter, src.SpaceAfter)
	mergeString(&dst.LineSpacing, src.LineSpacing)
	mergeString(&dst.IndentLeft, src.IndentLeft)
	mergeString(&dst.IndentRight, src.IndentRight)
	mergeString(&dst.FirstLineIndent, src.FirstLineIndent)
	if dst.KeepLines == nil {
		dst.KeepLines = src.KeepLines
	}
	if dst.KeepNext == nil {
		dst.KeepNext = src.KeepNext
	}
	if dst.PageBreakBefore == nil {
		dst.PageBreakBefore = src.PageBreakBefore
	}
	if dst.WidowControl == nil {
		dst.WidowControl = src.WidowControl
	}
}

func mergeString(dst *string, src string) {
	if *dst == "" {
		*dst = src
	}
}
