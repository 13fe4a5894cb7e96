package docstyle

import (
	"fmt"
	"slices"

	"github.com/beevik/etree"
)

var (
	runProperties       = []string{"rFonts", "b", "i", "color", "sz", "szCs", "u"}
	paragraphProperties = []string{"keepNext", "keepLines", "pageBreakBefore", "widowControl", "spacing", "ind", "jc"}
)

// applyStyle copies the tracked run and paragraph properties of tmpl onto the target definition.
func applyStyle(target, tmpl *Style) error {
	if target.el == nil || tmpl.el == nil {
		return fmt.Errorf("style %q has no definition", target.Name)
	}
	if tmpl.Type == TypeTable && target.Type != TypeTable {
		return fmt.Errorf("cannot apply table style %q to %s style %q", tmpl.Name, target.Type, target.Name)
	}
	if target.Type == TypeParagraph {
		copyProperties(tmpl.el, target.el, "pPr", paragraphProperties)
	}
	copyProperties(tmpl.el, target.el, "rPr", runProperties)
	return nil
}

// Child order of the containers written here, as fixed by the WordprocessingML schema.
var (
	styleOrder = []string{
		"name", "aliases", "basedOn", "next", "link", "autoRedefine", "hidden", "uiPriority",
		"semiHidden", "unhideWhenUsed", "qFormat", "locked", "personal", "personalCompose",
		"personalReply", "rsid", "pPr", "rPr", "tblPr", "trPr", "tcPr", "tblStylePr",
	}
	rPrOrder = []string{
		"rStyle", "rFonts", "b", "bCs", "i", "iCs", "caps", "smallCaps", "strike", "dstrike",
		"outline", "shadow", "emboss", "imprint", "noProof", "snapToGrid", "vanish", "webHidden",
		"color", "spacing", "w", "kern", "position", "sz", "szCs", "highlight", "u", "effect",
		"bdr", "shd", "fitText", "vertAlign", "rtl", "cs", "em", "lang", "eastAsianLayout",
		"specVanish", "oMath", "rPrChange",
	}
	pPrOrder = []string{
		"pStyle", "keepNext", "keepLines", "pageBreakBefore", "framePr", "widowControl", "numPr",
		"suppressLineNumbers", "pBdr", "shd", "tabs", "suppressAutoHyphens", "kinsoku", "wordWrap",
		"overflowPunct", "topLinePunct", "autoSpaceDE", "autoSpaceDN", "bidi", "adjustRightInd",
		"snapToGrid", "spacing", "ind", "contextualSpacing", "mirrorIndents", "suppressOverlap",
		"jc", "textDirection", "textAlignment", "textboxTightWrap", "outlineLvl", "divId",
		"cnfStyle", "rPr", "sectPr", "pPrChange",
	}
	sectPrOrder = []string{
		"headerReference", "footerReference", "footnotePr", "endnotePr", "type", "pgSz", "pgMar",
		"paperSrc", "pgBorders", "lnNumType", "pgNumType", "cols", "formProt", "vAlign",
		"noEndnote", "titlePg", "textDirection", "bidi", "rtlGutter", "docGrid",
		"printerSettings", "sectPrChange",
	}
	containerOrder = map[string][]string{"pPr": pPrOrder, "rPr": rPrOrder}
)

func copyProperties(src, dst *etree.Element, container string, names []string) {
	from := src.SelectElement("w:" + container)
	if from == nil {
		return
	}
	to := dst.SelectElement("w:" + container)
	if to == nil {
		to = etree.NewElement("w:" + container)
		insertOrdered(dst, to, styleOrder)
	}
	for _, name := range names {
		if prop := from.SelectElement("w:" + name); prop != nil {
			insertOrdered(to, prop.Copy(), containerOrder[container])
		}
	}
}

// insertOrdered replaces the child with the same tag in place, or inserts el
// before the first child that has to follow it in order.
func insertOrdered(parent, el *etree.Element, order []string) {
	if existing := parent.SelectElement(el.FullTag()); existing != nil {
		index := existing.Index()
		parent.RemoveChildAt(index)
		parent.InsertChildAt(index, el)
		return
	}
	rank := slices.Index(order, el.Tag)
	if rank >= 0 {
		for _, child := range parent.ChildElements() {
			if slices.Index(order, child.Tag) > rank {
				parent.InsertChildAt(child.Index(), el)
				return
			}
		}
	}
	parent.AddChild(el)
}

// applyPageSetup writes the template page size and margins into every section.
func applyPageSetup(doc *etree.Document, setup *PageSetup) int {
	root := doc.Root()
	if root == nil {
		return 0
	}
	sections := root.FindElements(".//w:sectPr")
	for _, sect := range sections {
		if setup.size != nil {
			insertOrdered(sect, setup.size.Copy(), sectPrOrder)
		}
		if setup.margins != nil {
			insertOrdered(sect, setup.margins.Copy(), sectPrOrder)
		}
	}
	return len(sections)
}
