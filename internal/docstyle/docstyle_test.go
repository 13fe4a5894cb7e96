package docstyle

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/beevik/etree"
)

const wordNS = `xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main"`

const templateStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles ` + wordNS + `>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/><w:pPr><w:spacing w:after="120" w:line="360"/><w:jc w:val="both"/></w:pPr><w:rPr><w:rFonts w:ascii="Calibri"/><w:sz w:val="24"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="heading 1"/><w:basedOn w:val="Normal"/><w:pPr><w:keepNext/><w:jc w:val="center"/></w:pPr><w:rPr><w:b/><w:color w:val="FF0000"/><w:sz w:val="32"/></w:rPr></w:style>
<w:style w:type="character" w:styleId="Emph"><w:name w:val="Emphasis"/><w:rPr><w:i/></w:rPr></w:style>
<w:style w:type="table" w:styleId="Grid"><w:name w:val="Table Grid"/></w:style>
</w:styles>`

const templateDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + wordNS + `><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Heading sample</w:t></w:r></w:p>
<w:sectPr><w:pgSz w:w="16838" w:h="11906" w:orient="landscape"/><w:pgMar w:top="720" w:right="720" w:bottom="720" w:left="720" w:header="0" w:footer="0" w:gutter="0"/></w:sectPr>
</w:body></w:document>`

const templateNumbering = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:numbering ` + wordNS + `><w:abstractNum w:abstractNumId="0"><w:lvl w:ilvl="0"><w:numFmt w:val="decimal"/></w:lvl></w:abstractNum></w:numbering>`

const targetStyles = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:styles ` + wordNS + `>
<w:style w:type="paragraph" w:default="1" w:styleId="Normal"><w:name w:val="Normal"/></w:style>
<w:style w:type="paragraph" w:styleId="Heading1"><w:name w:val="Heading 1"/><w:rPr><w:sz w:val="20"/></w:rPr></w:style>
<w:style w:type="paragraph" w:styleId="Body"><w:name w:val="Body Text"/></w:style>
<w:style w:type="paragraph" w:styleId="Quote"><w:name w:val="Quote"/></w:style>
</w:styles>`

const targetDocument = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document ` + wordNS + `><w:body>
<w:p><w:pPr><w:pStyle w:val="Heading1"/></w:pPr><w:r><w:t>Title text</w:t></w:r></w:p>
<w:p><w:r><w:t>hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Body"/></w:pPr><w:r><w:t>body</w:t></w:r></w:p>
<w:p><w:pPr><w:pStyle w:val="Quote"/></w:pPr><w:r><w:t>quote</w:t></w:r></w:p>
<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell hello</w:t></w:r></w:p></w:tc></w:tr></w:tbl>
<w:sectPr><w:pgSz w:w="11906" w:h="16838"/><w:pgMar w:top="1440" w:right="1440" w:bottom="1440" w:left="1440"/></w:sectPr>
</w:body></w:document>`

const appProps = `<Properties>untouched</Properties>`

func writeDocx(t *testing.T, path string, parts map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("failed to create %s: %v", path, err)
	}
	defer f.Close()
	w := zip.NewWriter(f)
	for _, name := range []string{"[Content_Types].xml", documentPart, stylesPart, numberingPart, "docProps/app.xml"} {
		content, ok := parts[name]
		if !ok {
			continue
		}
		fw, err := w.Create(name)
		if err != nil {
			t.Fatalf("failed to create part %s: %v", name, err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write part %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("failed to close archive: %v", err)
	}
}

func setupDocs(t *testing.T) (templatePath, targetPath string) {
	t.Helper()
	dir := t.TempDir()
	templatePath = filepath.Join(dir, "template.docx")
	targetPath = filepath.Join(dir, "target.docx")
	writeDocx(t, templatePath, map[string]string{
		"[Content_Types].xml": "<Types/>",
		documentPart:          templateDocument,
		stylesPart:            templateStyles,
		numberingPart:         templateNumbering,
	})
	writeDocx(t, targetPath, map[string]string{
		"[Content_Types].xml": "<Types/>",
		documentPart:          targetDocument,
		stylesPart:            targetStyles,
		"docProps/app.xml":    appProps,
	})
	return templatePath, targetPath
}

func styleByName(t *testing.T, styles []*Style, name string) *Style {
	t.Helper()
	for _, s := range styles {
		if s.Name == name {
			return s
		}
	}
	t.Fatalf("style %q not found", name)
	return nil
}

func TestExtractTemplate(t *testing.T) {
	templatePath, _ := setupDocs(t)

	tmpl, err := ExtractTemplate(templatePath)
	if err != nil {
		t.Fatalf("ExtractTemplate error: %v", err)
	}
	if len(tmpl.Paragraph) != 2 || len(tmpl.Character) != 1 || len(tmpl.Table) != 1 {
		t.Fatalf("unexpected style counts: %d/%d/%d", len(tmpl.Paragraph), len(tmpl.Character), len(tmpl.Table))
	}

	heading := styleByName(t, tmpl.Paragraph, "heading 1")
	if heading.Font.Size != 16 {
		t.Errorf("expected size 16pt, got %v", heading.Font.Size)
	}
	if heading.Font.Bold == nil || !*heading.Font.Bold {
		t.Errorf("expected bold heading")
	}
	if heading.Font.Color != "FF0000" {
		t.Errorf("expected color FF0000, got %q", heading.Font.Color)
	}
	if heading.Paragraph.Alignment != "center" {
		t.Errorf("expected center alignment, got %q", heading.Paragraph.Alignment)
	}
	if heading.Paragraph.KeepNext == nil || !*heading.Paragraph.KeepNext {
		t.Errorf("expected keepNext")
	}
	if heading.BasedOn != "Normal" {
		t.Errorf("expected basedOn Normal, got %q", heading.BasedOn)
	}

	if len(tmpl.Lists) != 1 || tmpl.Lists[0].Format != "decimal" {
		t.Errorf("unexpected list formats: %+v", tmpl.Lists)
	}
	if tmpl.Page == nil {
		t.Fatalf("expected page setup")
	}
	if tmpl.Page.Orientation != "landscape" || tmpl.Page.Width != "16838" {
		t.Errorf("unexpected page setup: %+v", tmpl.Page)
	}
	if tmpl.Page.Margins["top"] != "720" {
		t.Errorf("expected top margin 720, got %q", tmpl.Page.Margins["top"])
	}
}

func TestBuildMapping(t *testing.T) {
	templatePath, targetPath := setupDocs(t)
	tmpl, err := ExtractTemplate(templatePath)
	if err != nil {
		t.Fatalf("ExtractTemplate error: %v", err)
	}
	target, err := openDocx(targetPath)
	if err != nil {
		t.Fatalf("openDocx error: %v", err)
	}
	targetStyles, err := loadStyles(target)
	if err != nil {
		t.Fatalf("loadStyles error: %v", err)
	}

	mapping := BuildMapping(tmpl, targetStyles, map[string]string{
		"Body Text": "emphasis",
		"Quote":     "does not exist",
	})

	tests := []struct {
		target   string
		template string
	}{
		{"Normal", "Normal"},
		{"Heading 1", "heading 1"},
		{"Body Text", "Emphasis"},
	}
	for _, tt := range tests {
		got, ok := mapping[tt.target]
		if !ok {
			t.Errorf("expected mapping for %q", tt.target)
			continue
		}
		if got.Name != tt.template {
			t.Errorf("mapping[%q] = %q, want %q", tt.target, got.Name, tt.template)
		}
	}
	if _, ok := mapping["Quote"]; ok {
		t.Errorf("expected unresolved manual mapping to be ignored")
	}
}

func TestProcess(t *testing.T) {
	templatePath, targetPath := setupDocs(t)
	outputPath := filepath.Join(t.TempDir(), "output", "processed_target.docx")

	stats, err := Process(context.Background(), Options{
		TemplatePath:  templatePath,
		TargetPath:    targetPath,
		OutputPath:    outputPath,
		ManualMapping: map[string]string{"Quote": "Table Grid"},
	})
	if err != nil {
		t.Fatalf("Process error: %v", err)
	}

	want := Stats{
		TotalParagraphs:        4,
		ProcessedParagraphs:    2,
		TotalTables:            1,
		ProcessedTables:        1,
		SuccessfulApplications: 4,
		FailedApplications:     1,
		SkippedElements:        1,
	}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}

	out, err := openDocx(outputPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	if p := out.find("docProps/app.xml"); p == nil || string(p.data) != appProps {
		t.Errorf("expected untouched parts to be copied unchanged")
	}

	styles, err := loadStyles(out)
	if err != nil {
		t.Fatalf("loadStyles error: %v", err)
	}
	heading := styleByName(t, styles, "Heading 1")
	if heading.Font.Size != 16 {
		t.Errorf("expected size replaced with 16pt, got %v", heading.Font.Size)
	}
	if heading.Font.Bold == nil || !*heading.Font.Bold || heading.Font.Color != "FF0000" {
		t.Errorf("expected bold red heading, got %+v", heading.Font)
	}
	if heading.Paragraph.Alignment != "center" {
		t.Errorf("expected center alignment, got %q", heading.Paragraph.Alignment)
	}
	pPr := heading.el.SelectElement("w:pPr")
	rPr := heading.el.SelectElement("w:rPr")
	if pPr == nil || rPr == nil || pPr.Index() > rPr.Index() {
		t.Errorf("expected pPr before rPr in style definition")
	}
	if sz := rPr.SelectElements("w:sz"); len(sz) != 1 {
		t.Errorf("expected a single sz element, got %d", len(sz))
	}

	normal := styleByName(t, styles, "Normal")
	if normal.Font.Name != "Calibri" || normal.Paragraph.LineSpacing != "360" {
		t.Errorf("expected normal style to receive template properties, got %+v %+v", normal.Font, normal.Paragraph)
	}
	if body := styleByName(t, styles, "Body Text"); body.Font.Name != "" {
		t.Errorf("expected unmapped style untouched, got %+v", body.Font)
	}

	doc, err := out.document(documentPart)
	if err != nil {
		t.Fatalf("document error: %v", err)
	}
	page := readPageSetup(doc)
	if page == nil || page.Orientation != "landscape" || page.Margins["top"] != "720" {
		t.Errorf("expected template page setup in output, got %+v", page)
	}
}

func childTags(el *etree.Element) string {
	tags := make([]string, 0, len(el.ChildElements()))
	for _, child := range el.ChildElements() {
		tags = append(tags, child.Tag)
	}
	return strings.Join(tags, ",")
}

func TestProcess_KeepsSchemaOrder(t *testing.T) {
	templatePath, targetPath := setupDocs(t)
	outputPath := filepath.Join(t.TempDir(), "processed_target.docx")
	if _, err := Process(context.Background(), Options{
		TemplatePath: templatePath,
		TargetPath:   targetPath,
		OutputPath:   outputPath,
	}); err != nil {
		t.Fatalf("Process error: %v", err)
	}
	out, err := openDocx(outputPath)
	if err != nil {
		t.Fatalf("failed to open output: %v", err)
	}
	styles, err := loadStyles(out)
	if err != nil {
		t.Fatalf("loadStyles error: %v", err)
	}

	heading := styleByName(t, styles, "Heading 1")
	normal := styleByName(t, styles, "Normal")
	tests := []struct {
		name string
		el   *etree.Element
		want string
	}{
		{"heading style", heading.el, "name,pPr,rPr"},
		{"heading rPr", heading.el.SelectElement("w:rPr"), "b,color,sz"},
		{"heading pPr", heading.el.SelectElement("w:pPr"), "keepNext,jc"},
		{"normal rPr", normal.el.SelectElement("w:rPr"), "rFonts,sz"},
		{"normal pPr", normal.el.SelectElement("w:pPr"), "spacing,jc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.el == nil {
				t.Fatalf("element missing")
			}
			if got := childTags(tt.el); got != tt.want {
				t.Errorf("children = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInsertOrdered_SectionProperties(t *testing.T) {
	sect := etree.NewElement("w:sectPr")
	sect.CreateElement("w:cols")
	sect.CreateElement("w:docGrid")

	insertOrdered(sect, etree.NewElement("w:pgMar"), sectPrOrder)
	insertOrdered(sect, etree.NewElement("w:pgSz"), sectPrOrder)
	replacement := etree.NewElement("w:pgSz")
	replacement.CreateAttr("w:w", "100")
	insertOrdered(sect, replacement, sectPrOrder)

	if got := childTags(sect); got != "pgSz,pgMar,cols,docGrid" {
		t.Errorf("children = %s, want pgSz,pgMar,cols,docGrid", got)
	}
	if got := sect.SelectElement("w:pgSz").SelectAttrValue("w:w", ""); got != "100" {
		t.Errorf("expected pgSz replaced in place, got w=%q", got)
	}
}

func TestProcess_Errors(t *testing.T) {
	templatePath, _ := setupDocs(t)
	notDocx := filepath.Join(t.TempDir(), "plain.docx")
	if err := os.WriteFile(notDocx, []byte("not a zip"), 0o644); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	if _, err := Process(context.Background(), Options{TemplatePath: templatePath}); !errors.Is(err, ErrMissingPath) {
		t.Errorf("expected ErrMissingPath, got %v", err)
	}
	_, err := Process(context.Background(), Options{
		TemplatePath: templatePath,
		TargetPath:   notDocx,
		OutputPath:   filepath.Join(t.TempDir(), "out.docx"),
	})
	if err == nil {
		t.Errorf("expected error for invalid target")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = Process(ctx, Options{
		TemplatePath: templatePath,
		TargetPath:   templatePath,
		OutputPath:   filepath.Join(t.TempDir(), "out.docx"),
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestFindStylesByText(t *testing.T) {
	templatePath, targetPath := setupDocs(t)

	matches, err := FindStylesByText(targetPath, "hello")
	if err != nil {
		t.Fatalf("FindStylesByText error: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Kind != "paragraph" || matches[0].Index != 1 || matches[0].Text != "hello world" {
		t.Errorf("unexpected paragraph match: %+v", matches[0])
	}
	if matches[0].Style.ID != "Normal" {
		t.Errorf("expected default paragraph style, got %q", matches[0].Style.ID)
	}
	if matches[1].Kind != "table" || matches[1].Index != 0 {
		t.Errorf("unexpected table match: %+v", matches[1])
	}

	inherited, err := FindStylesByText(templatePath, "Heading")
	if err != nil {
		t.Fatalf("FindStylesByText error: %v", err)
	}
	if len(inherited) != 1 {
		t.Fatalf("expected 1 match, got %d", len(inherited))
	}
	style := inherited[0].Style
	if style.Font.Name != "Calibri" || style.Font.Size != 16 {
		t.Errorf("expected inherited font Calibri 16pt, got %+v", style.Font)
	}
	if style.Paragraph.LineSpacing != "360" || style.Paragraph.Alignment != "center" {
		t.Errorf("unexpected effective paragraph format: %+v", style.Paragraph)
	}

	none, err := FindStylesByText(targetPath, "absent")
	if err != nil || len(none) != 0 {
		t.Errorf("expected no matches, got %v (err %v)", none, err)
	}
}
