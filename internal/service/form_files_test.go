package service

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFormFileValidatorAcceptsDocuments(t *testing.T) {
	validator := newFormFileValidator(1)
	png := []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

	cases := map[string]struct {
		filename string
		content  []byte
		mime     string
	}{
		"pdf":   {filename: "Research Plan.PDF", content: samplePDF, mime: "application/pdf"},
		"text":  {filename: "abstract.txt", content: []byte("An abstract about soil bacteria."), mime: "text/plain"},
		"image": {filename: "photo.png", content: png, mime: "image/png"},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			file, err := validator.read(newFileHeader(t, tc.filename, tc.content))
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(file.mime, tc.mime), file.mime)
			require.Equal(t, tc.content, file.payload)
		})
	}
}

func TestFormFileValidatorRejectsExecutables(t *testing.T) {
	validator := newFormFileValidator(1)
	elf := append([]byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, bytes.Repeat([]byte{0}, 56)...)

	_, err := validator.read(newFileHeader(t, "form.pdf", elf))
	require.ErrorIs(t, err, ErrFileTypeNotAllowed)
	require.True(t, IsValidationError(err))
}

func TestFormFileValidatorEnforcesSize(t *testing.T) {
	validator := newFormFileValidator(1)
	oversized := append(append([]byte(nil), samplePDF...), bytes.Repeat([]byte("a"), 1024*1024)...)

	_, err := validator.read(newFileHeader(t, "big.pdf", oversized))
	require.ErrorIs(t, err, ErrFileTooLarge)
}

func TestFormFileValidatorRejectsEmptyFile(t *testing.T) {
	validator := newFormFileValidator(1)

	_, err := validator.read(newFileHeader(t, "empty.pdf", nil))
	require.ErrorIs(t, err, ErrFileRequired)

	_, err = validator.read(nil)
	require.ErrorIs(t, err, ErrFileRequired)
}

func TestSanitizeFileName(t *testing.T) {
	require.Equal(t, "research-plan.pdf", sanitizeFileName("Research Plan.PDF"))
	require.Equal(t, "report.docx", sanitizeFileName(`C:\Users\kid\report.docx`))
	require.Equal(t, "notes.bin", sanitizeFileName("../../notes"))
	require.Equal(t, "form_1a.pdf", sanitizeFileName("form_1a.pdf"))
	require.True(t, strings.HasPrefix(sanitizeFileName("***.pdf"), "form-"))
}

func TestFormBlobKeys(t *testing.T) {
	at := time.Unix(1700000000, 123456789).UTC()

	require.Equal(t, "projects/P1/forms/1700000000123456789_plan.pdf", initialFormKey("P1", at, "plan.pdf"))
	require.Equal(t, "projects/P1/forms/1700000000123456789_v3_plan.pdf", versionFormKey("P1", at, 3, "plan.pdf"))
	require.Equal(t, "projects/team-a-b/forms/1700000000123456789_plan.pdf", initialFormKey("team a/b", at, "plan.pdf"))
	require.Equal(t, "projects/unassigned/forms/1700000000123456789_plan.pdf", initialFormKey("  ", at, "plan.pdf"))
	require.NotEqual(t, initialFormKey("P1", at, "plan.pdf"), initialFormKey("P1", at.Add(time.Nanosecond), "plan.pdf"))
}
