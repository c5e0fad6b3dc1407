package validation

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/gainfolio/backend/src/logger"
)

// Client-declared MIME types accepted for CSV upload. Browsers disagree on
// what to call a CSV, so the list is wider than text/csv.
var allowedClientContentTypes = map[string]bool{
	"text/csv":                 true,
	"application/csv":          true,
	"application/vnd.ms-excel": true,
	"text/plain":               true,
	"application/octet-stream": true,
}

// Content types http.DetectContentType may report for a genuine CSV.
// Anything else (zip, pdf, executables) is rejected before parsing.
var allowedDetectedTypes = map[string]bool{
	"text/plain":               true,
	"text/csv":                 true,
	"application/csv":          true,
	"application/octet-stream": true,
}

// ValidateClientContentType checks the Content-Type header the client sent.
func ValidateClientContentType(contentType string) error {
	if !allowedClientContentTypes[strings.ToLower(contentType)] {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("client-declared file type '%s' is not allowed for CSV upload", contentType)
	}
	return nil
}

// ValidateFileContentByMagicBytes sniffs the leading bytes of the upload
// and rejects content whose signature cannot be a CSV. The reader is
// rewound afterwards so the parser sees the whole file.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("file is nil")
	}

	buffer := make([]byte, 512)
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("failed to read file for content type checking: %w", err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("failed to reset file read pointer: %w", err)
	}

	detected := http.DetectContentType(buffer[:n])
	detected = strings.ToLower(strings.Split(detected, ";")[0])

	if !allowedDetectedTypes[detected] {
		logger.L.Warn("Disallowed detected file content type", "detectedContentType", detected)
		return detected, fmt.Errorf("detected file content type '%s' is not consistent with a CSV file", detected)
	}

	logger.L.Debug("File content type validated", "detectedContentType", detected)
	return detected, nil
}
