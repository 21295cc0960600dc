package attachment

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
)

const megabyte = 1024 * 1024

// Accepted document types
const (
	MIMEPDF  = "application/pdf"
	MIMEDoc  = "application/msword"
	MIMEDocx = "application/vnd.openxmlformats-officedocument.wordprocessingml.document"
	MIMEText = "text/plain"
)

// File is an immutable reference to a user-selected file
type File struct {
	Name     string
	Size     int64
	MIMEType string
	Path     string // local path, required for a real upload
}

// Some platforms ship no mapping for Word formats.
var extensionTypes = map[string]string{
	".pdf":  MIMEPDF,
	".doc":  MIMEDoc,
	".docx": MIMEDocx,
	".txt":  MIMEText,
}

// FileFromPath stats path and derives its MIME type from the extension
func FileFromPath(path string) (File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return File{}, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if info.IsDir() {
		return File{}, fmt.Errorf("%s is a directory", path)
	}

	ext := strings.ToLower(filepath.Ext(path))
	mimeType, ok := extensionTypes[ext]
	if !ok {
		mimeType = mime.TypeByExtension(ext)
	}
	return File{
		Name:     filepath.Base(path),
		Size:     info.Size(),
		MIMEType: mimeType,
		Path:     path,
	}, nil
}

// Policy is the attachment accept policy
type Policy struct {
	MaxSize      int64
	AllowedTypes []string
}

// DefaultPolicy accepts PDF, DOC, DOCX and TXT files up to 10 MB
func DefaultPolicy() Policy {
	return PolicyWithLimit(10)
}

// PolicyWithLimit is the default type allow-list with a custom size limit
func PolicyWithLimit(maxMB int) Policy {
	return Policy{
		MaxSize:      int64(maxMB) * megabyte,
		AllowedTypes: []string{MIMEPDF, MIMEDoc, MIMEDocx, MIMEText},
	}
}

// Verdict is the outcome of validating a file
type Verdict struct {
	Accepted bool
	Reason   string
}

// Validate checks the file against the policy. It has no side effects.
func (p Policy) Validate(f File) Verdict {
	if f.Size > p.MaxSize {
		return Verdict{Reason: fmt.Sprintf("File size exceeds %d MB limit", p.MaxSize/megabyte)}
	}
	if !p.allows(f.MIMEType) {
		return Verdict{Reason: "Unsupported file type. Allowed: PDF, DOC, DOCX, TXT"}
	}
	return Verdict{Accepted: true}
}

func (p Policy) allows(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	for _, allowed := range p.AllowedTypes {
		if mediaType == allowed {
			return true
		}
	}
	return false
}

// ValidationError is returned when a file is rejected before selection
type ValidationError struct {
	File   File
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.File.Name, e.Reason)
}
