package export

import (
	"archive/zip"
	"bytes"
	"fmt"
	"strings"

	"github.com/nguyenthenguyen/docx"
)

// bodyMarker is the placeholder paragraph the template carries; the
// rendered report replaces it wholesale.
const bodyMarker = `<w:p><w:r><w:t>__DOSSIER_BODY__</w:t></w:r></w:p>`

// DOCX renders the artifact as a Word document at outPath.
func DOCX(a *Artifact, outPath string) error {
	tmpl, err := baseTemplate()
	if err != nil {
		return fmt.Errorf("failed to build template: %w", err)
	}

	doc, err := docx.ReadDocxFromMemory(bytes.NewReader(tmpl), int64(len(tmpl)))
	if err != nil {
		return fmt.Errorf("failed to open template: %w", err)
	}
	defer doc.Close()

	editable := doc.Editable()
	editable.ReplaceRaw(bodyMarker, renderBody(a), 1)

	if err := editable.WriteToFile(outPath); err != nil {
		return fmt.Errorf("failed to write docx: %w", err)
	}
	return nil
}

// renderBody converts the artifact's Markdown lines into WordprocessingML
// paragraphs. Blank lines separate paragraphs; headings render bold at
// a size stepped by level.
func renderBody(a *Artifact) string {
	var b strings.Builder
	var para []string

	flush := func() {
		if len(para) == 0 {
			return
		}
		fmt.Fprintf(&b, `<w:p><w:r><w:t xml:space="preserve">%s</w:t></w:r></w:p>`, escapeXML(strings.Join(para, " ")))
		para = para[:0]
	}

	for _, line := range a.Lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			flush()
			continue
		}
		if level := headingLevel(trimmed); level > 0 {
			flush()
			text := plainText(strings.TrimLeft(trimmed, "# "))
			fmt.Fprintf(&b,
				`<w:p><w:pPr><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr></w:pPr><w:r><w:rPr><w:b/><w:sz w:val="%d"/></w:rPr><w:t xml:space="preserve">%s</w:t></w:r></w:p>`,
				headingSize(level), headingSize(level), escapeXML(text))
			continue
		}
		if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "> ") {
			flush()
			para = append(para, plainText(trimmed[2:]))
			flush()
			continue
		}
		para = append(para, plainText(trimmed))
	}
	flush()
	return b.String()
}

// headingSize maps heading level to half-point font size.
func headingSize(level int) int {
	switch level {
	case 1:
		return 36
	case 2:
		return 30
	default:
		return 26
	}
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
)

func escapeXML(s string) string {
	return xmlEscaper.Replace(s)
}

// baseTemplate assembles a minimal valid DOCX package in memory. The
// docx library edits existing documents, so the empty shell is built
// here instead of shipping a binary asset.
func baseTemplate() ([]byte, error) {
	files := map[string]string{
		"[Content_Types].xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
<Default Extension="xml" ContentType="application/xml"/>
<Override PartName="/word/document.xml" ContentType="application/vnd.openxmlformats-officedocument.wordprocessingml.document.main+xml"/>
</Types>`,
		"_rels/.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
<Relationship Id="rId1" Type="http://schemas.openxmlformats.org/officeDocument/2006/relationships/officeDocument" Target="word/document.xml"/>
</Relationships>`,
		"word/_rels/document.xml.rels": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships"/>`,
		"word/document.xml": `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
<w:body>` + bodyMarker + `</w:body>
</w:document>`,
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		f, err := zw.Create(name)
		if err != nil {
			return nil, err
		}
		if _, err := f.Write([]byte(content)); err != nil {
			return nil, err
		}
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
