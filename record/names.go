package record

import (
	"path/filepath"
	"strings"
)

const processedSuffix = "_processed"

// ProcessedImageName returns the name the annotated copy of an image is
// stored under: "farm(U1).jpg" becomes "farm(U1)_processed.jpg".
func ProcessedImageName(name string) string {
	ext := filepath.Ext(name)
	return strings.TrimSuffix(name, ext) + processedSuffix + ext
}

// OwnerFromImageName extracts the uploader id embedded between the first
// pair of parentheses of a file name, or "" when there is none.
func OwnerFromImageName(name string) string {
	base := filepath.Base(name)
	open := strings.IndexByte(base, '(')
	if open < 0 {
		return ""
	}
	end := strings.IndexByte(base[open+1:], ')')
	if end < 0 {
		return ""
	}
	return strings.TrimSpace(base[open+1 : open+1+end])
}
