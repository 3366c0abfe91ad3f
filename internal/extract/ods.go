package extract

import (
	"archive/zip"
	"bytes"
	"fmt"
	"regexp"
	"strings"
)

// odsContentPath is the path to the main content inside an .ods zip (OpenDocument Spreadsheet).
const odsContentPath = "content.xml"

var (
	odsRowEnd = regexp.MustCompile(`</table:table-row>`)
	odsTextP  = regexp.MustCompile(`<text:p[^>]*>(.*?)</text:p>`)
	odsTag    = regexp.MustCompile(`<[^>]+>`)
)

// extractODS extracts text from .ods bytes, one line per table row with
// cell paragraphs joined by a space.
func extractODS(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("extract ODS: not a zip: %w", err)
	}
	contentXML, err := readZipFile(zr, odsContentPath)
	if err != nil {
		return "", fmt.Errorf("extract ODS: %w", err)
	}

	var b strings.Builder
	for _, row := range odsRowEnd.Split(string(contentXML), -1) {
		var cells []string
		for _, p := range odsTextP.FindAllStringSubmatch(row, -1) {
			if cell := strings.TrimSpace(odsTag.ReplaceAllString(p[1], "")); cell != "" {
				cells = append(cells, cell)
			}
		}
		if len(cells) > 0 {
			b.WriteString(strings.Join(cells, " "))
			b.WriteByte('\n')
		}
	}
	return strings.TrimSpace(b.String()), nil
}
