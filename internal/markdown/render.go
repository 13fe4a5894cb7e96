package markdown

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"slices"
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
	treeblood "github.com/wyatt915/goldmark-treeblood"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/renderer/html"
)

//go:embed result.css
var resultCSS string

var pageTemplate = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>{{.Title}}</title>
<style>{{.CSS}}</style>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// Vendor markdown embeds raw HTML (centered images, tables), so unsafe rendering
// is enabled and every fragment goes through sanitize.
var converter = goldmark.New(
	goldmark.WithExtensions(
		extension.GFM,
		treeblood.MathML(),
	),
	goldmark.WithRendererOptions(
		html.WithUnsafe(),
	),
)

// RenderFragment converts markdown to a sanitized HTML fragment. Relative image
// sources are prefixed with imageBase when it is not empty.
func RenderFragment(text, imageBase string) (string, error) {
	var buf bytes.Buffer
	if err := converter.Convert([]byte(text), &buf); err != nil {
		return "", fmt.Errorf("failed to render markdown: %w", err)
	}
	return postProcess(buf.String(), imageBase)
}

// RenderHTML converts markdown to a standalone HTML page with the result stylesheet.
func RenderHTML(text, imageBase string) (string, error) {
	body, err := RenderFragment(text, imageBase)
	if err != nil {
		return "", err
	}
	var out bytes.Buffer
	err = pageTemplate.Execute(&out, map[string]any{
		"Title": "OCR Result",
		"CSS":   template.CSS(resultCSS),
		"Body":  template.HTML(body),
	})
	if err != nil {
		return "", fmt.Errorf("failed to render html page: %w", err)
	}
	return out.String(), nil
}

// Stylesheet returns the CSS used for rendered results.
func Stylesheet() string {
	return resultCSS
}

// Elements that can run script or replace the page are dropped from results.
const blockedElements = "script, iframe, frame, frameset, object, embed, applet, base, link, meta, form, style, noscript"

var urlAttributes = []string{"href", "src", "action", "formaction", "xlink:href", "srcset"}

func postProcess(fragment, imageBase string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return "", fmt.Errorf("failed to parse rendered html: %w", err)
	}
	sanitize(doc.Selection)
	if imageBase != "" {
		rewriteImageSources(doc.Selection, imageBase)
	}
	return doc.Find("body").Html()
}

// sanitize removes scripting elements, event handler attributes and script URLs.
func sanitize(root *goquery.Selection) {
	root.Find(blockedElements).Remove()
	root.Find("*").Each(func(_ int, el *goquery.Selection) {
		node := el.Get(0)
		kept := node.Attr[:0]
		for _, attr := range node.Attr {
			key := strings.ToLower(attr.Key)
			if strings.HasPrefix(key, "on") {
				continue
			}
			if slices.Contains(urlAttributes, key) && isScriptURL(attr.Val) {
				continue
			}
			kept = append(kept, attr)
		}
		node.Attr = kept
	})
}

func isScriptURL(value string) bool {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return -1
		}
		return r
	}, strings.ToLower(value))
	return strings.HasPrefix(cleaned, "javascript:") ||
		strings.HasPrefix(cleaned, "vbscript:") ||
		strings.HasPrefix(cleaned, "data:text/html")
}

func rewriteImageSources(root *goquery.Selection, base string) {
	base = strings.TrimSuffix(base, "/")
	root.Find("img").Each(func(_ int, img *goquery.Selection) {
		src, ok := img.Attr("src")
		if !ok || isAbsoluteRef(src) {
			return
		}
		img.SetAttr("src", base+"/"+strings.TrimPrefix(src, "/"))
		img.SetAttr("loading", "lazy")
	})
}

func isAbsoluteRef(src string) bool {
	lower := strings.ToLower(src)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "//")
}
