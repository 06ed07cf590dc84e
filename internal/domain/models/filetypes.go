// internal/domain/models/filetypes.go
package models

import "strings"

// FileType is the coarse content kind of a File.
type FileType string

const (
	FileTypeImage FileType = "image"
	FileTypePDF   FileType = "pdf"
	FileTypeText  FileType = "text"
)

// FileTypes lists every valid file type.
var FileTypes = []FileType{FileTypeImage, FileTypePDF, FileTypeText}

// ParseFileType normalizes s into a FileType.
// The legacy value "txt" is accepted as FileTypeText.
func ParseFileType(s string) (FileType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "image":
		return FileTypeImage, true
	case "pdf":
		return FileTypePDF, true
	case "text", "txt":
		return FileTypeText, true
	}
	return "", false
}
