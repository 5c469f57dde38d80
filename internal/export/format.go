package export

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joseph-ayodele/labreport-extractor/internal/common"
)

type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatCSV  Format = "csv"
	FormatTXT  Format = "txt"
)

var ErrUnknownFormat = fmt.Errorf("unknown export format: %w", common.ErrInvalidInput)

// ParseFormat accepts a format name or file extension, case-insensitively.
// An empty string selects xlsx.
func ParseFormat(s string) (Format, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), ".") {
	case "", "xlsx", "excel":
		return FormatXLSX, nil
	case "csv":
		return FormatCSV, nil
	case "txt", "text":
		return FormatTXT, nil
	}
	return "", errors.Join(ErrUnknownFormat, fmt.Errorf("format %q", s))
}

func (f Format) ContentType() string {
	switch f {
	case FormatXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTXT:
		return "text/plain; charset=utf-8"
	}
	return "application/octet-stream"
}

func (f Format) Extension() string {
	return "." + string(f)
}
