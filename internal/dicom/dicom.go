// Package dicom provides cheap DICOM recognition for stage discovery:
// extension matching plus the DICM magic check. No parsing beyond the
// 132-byte preamble; full decoding belongs to the external tools.
package dicom

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
)

// Recognized raw-study file extensions (lowercase, with leading dot).
var fileExtensions = map[string]bool{
	".dcm": true,
	".ima": true,
}

// magic is the DICOM marker found at byte offset 128 of a Part-10 file.
var magic = []byte("DICM")

// HasExt reports whether name carries a recognized DICOM extension.
func HasExt(name string) bool {
	return fileExtensions[strings.ToLower(filepath.Ext(name))]
}

// IsFile reports whether path looks like a DICOM file: recognized
// extension, or the DICM magic after the 128-byte preamble. Files that
// cannot be opened or are too short are not DICOM.
func IsFile(path string) bool {
	if HasExt(path) {
		return true
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	var buf [132]byte
	if _, err := f.ReadAt(buf[:], 0); err != nil {
		return false
	}
	return bytes.Equal(buf[128:132], magic)
}

// IsStudyDir reports whether dir holds a DICOM series, by checking at
// most the first probeLimit regular files. Mirrors the cheap sniff used
// during discovery: one positive file marks the whole directory.
func IsStudyDir(dir string) bool {
	const probeLimit = 3

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false
	}
	seen := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if IsFile(filepath.Join(dir, e.Name())) {
			return true
		}
		seen++
		if seen >= probeLimit {
			break
		}
	}
	return false
}
