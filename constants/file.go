package constants

import (
	"bytes"
	"strings"
)

// PDFMagic is the header every PDF file starts with.
var PDFMagic = []byte("%PDF-")

const (
	MimePDF  = "application/pdf"
	MimeJSON = "application/json"
)

// AllowedExtensions holds the file extensions picked up by directory scans and the watcher.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) is ingestible.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// LooksLikePDF sniffs the PDF header, tolerating leading whitespace.
func LooksLikePDF(data []byte) bool {
	return bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), PDFMagic)
}
