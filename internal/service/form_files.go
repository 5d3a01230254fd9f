package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/noah-isme/sciencefair-api/internal/observability"
)

// FileStorage is the blob store. The key is chosen by the caller and must be unique per upload.
type FileStorage interface {
	Upload(ctx context.Context, key string, reader io.Reader) (string, error)
}

// formFile is an uploaded file that passed size and type checks.
type formFile struct {
	name    string
	mime    string
	payload []byte
}

type formFileValidator struct {
	maxSize int64
}

func newFormFileValidator(maxSizeMB int) formFileValidator {
	if maxSizeMB <= 0 {
		maxSizeMB = 10
	}
	return formFileValidator{maxSize: int64(maxSizeMB) * 1024 * 1024}
}

func (v formFileValidator) read(file *multipart.FileHeader) (formFile, error) {
	if file == nil {
		return formFile{}, ErrFileRequired
	}

	if file.Size > v.maxSize {
		observability.FormUploadsRejected().WithLabelValues("size").Inc()
		return formFile{}, ErrFileTooLarge
	}

	handle, err := file.Open()
	if err != nil {
		return formFile{}, fmt.Errorf("failed to open file: %w", err)
	}
	defer handle.Close()

	buf := bytes.NewBuffer(nil)
	if _, err := io.Copy(buf, io.LimitReader(handle, v.maxSize+1)); err != nil {
		return formFile{}, fmt.Errorf("failed to read file: %w", err)
	}
	if int64(buf.Len()) > v.maxSize {
		observability.FormUploadsRejected().WithLabelValues("size").Inc()
		return formFile{}, ErrFileTooLarge
	}
	if buf.Len() == 0 {
		return formFile{}, ErrFileRequired
	}

	detected := mimetype.Detect(buf.Bytes())
	if !isAllowedFormMime(detected) {
		observability.FormUploadsRejected().WithLabelValues("type").Inc()
		return formFile{}, fmt.Errorf("%w: %s", ErrFileTypeNotAllowed, detected.String())
	}

	return formFile{
		name:    sanitizeFileName(file.Filename),
		mime:    detected.String(),
		payload: buf.Bytes(),
	}, nil
}

var allowedFormMimes = []string{
	"application/pdf",
	"application/zip",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/msword",
	"application/x-ole-storage",
	"text/plain",
}

func isAllowedFormMime(detected *mimetype.MIME) bool {
	if strings.HasPrefix(detected.String(), "image/") {
		return true
	}
	for _, allowed := range allowedFormMimes {
		if detected.Is(allowed) {
			return true
		}
	}
	return false
}

// initialFormKey is the blob key of the first upload of a form.
func initialFormKey(projectID string, at time.Time, fileName string) string {
	return fmt.Sprintf("projects/%s/forms/%d_%s", keySegment(projectID), at.UnixNano(), fileName)
}

// versionFormKey is the blob key of a re-upload.
func versionFormKey(projectID string, at time.Time, versionNumber int, fileName string) string {
	return fmt.Sprintf("projects/%s/forms/%d_v%d_%s", keySegment(projectID), at.UnixNano(), versionNumber, fileName)
}

func keySegment(value string) string {
	segment := strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == ' ' {
			return '-'
		}
		return r
	}, strings.TrimSpace(value))
	if segment == "" {
		return "unassigned"
	}
	return segment
}

func sanitizeFileName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	base := strings.TrimSuffix(name, filepath.Ext(name))
	base = strings.ToLower(base)
	base = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			return r
		}
		if r == '-' || r == '_' {
			return r
		}
		return '-'
	}, base)
	base = strings.Trim(base, "-")
	if base == "" {
		base = fmt.Sprintf("form-%d", time.Now().Unix())
	}
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" || ext == "." {
		ext = ".bin"
	}
	return base + ext
}
