package utils

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// imageExts are the upload formats the analyzer decodes
var imageExts = map[string]bool{
	"jpg":  true,
	"jpeg": true,
	"png":  true,
	"gif":  true,
	"webp": true,
}

// EnsureDir creates a directory if it doesn't exist
func EnsureDir(dir string) error {
	return os.MkdirAll(dir, 0o755)
}

// GetFileExtension returns the lowercase file extension without the dot
func GetFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if len(ext) > 0 {
		return strings.ToLower(ext[1:])
	}
	return ""
}

// IsImageFile checks if a file has a supported image extension
func IsImageFile(filename string) bool {
	return imageExts[GetFileExtension(filename)]
}

// ListImageFiles recursively lists image files under dir in lexical order
func ListImageFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && IsImageFile(path) {
			files = append(files, path)
		}
		return nil
	})
	sort.Strings(files)
	return files, err
}

// DirExists checks if a directory exists
func DirExists(dirname string) bool {
	info, err := os.Stat(dirname)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// OutputDirs maps each input under root to its own directory under base.
// Subdirectories of root are mirrored and each directory is named after
// the input file without its extension; inputs whose names still collide
// get the extension or a counter appended.
func OutputDirs(base, root string, inputs []string) []string {
	out := make([]string, len(inputs))
	seen := make(map[string]bool, len(inputs))
	for i, input := range inputs {
		rel, err := filepath.Rel(root, input)
		if err != nil || strings.HasPrefix(rel, "..") {
			rel = filepath.Base(input)
		}

		parts := strings.Split(filepath.Dir(rel), string(filepath.Separator))
		dir := []string{base}
		for _, part := range parts {
			if part == "." || part == "" {
				continue
			}
			if part = SanitizeFilename(part); part == "" {
				part = "_"
			}
			dir = append(dir, part)
		}

		name := filepath.Base(rel)
		stem := SanitizeFilename(strings.TrimSuffix(name, filepath.Ext(name)))
		if stem == "" {
			stem = "image"
		}
		candidate := filepath.Join(append(dir, stem)...)
		if seen[candidate] {
			if ext := GetFileExtension(name); ext != "" {
				candidate = filepath.Join(append(dir, stem+"_"+ext)...)
			}
		}
		for n := 2; seen[candidate]; n++ {
			candidate = filepath.Join(append(dir, fmt.Sprintf("%s_%d", stem, n))...)
		}
		seen[candidate] = true
		out[i] = candidate
	}
	return out
}

// SanitizeFilename removes or replaces invalid characters in filenames
func SanitizeFilename(filename string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := filename

	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}

	// leading/trailing spaces and dots
	result = strings.Trim(result, " .")

	return result
}

// FormatFileSize formats file size in human-readable format
func FormatFileSize(size int64) string {
	const unit = 1024
	if size < unit {
		return fmt.Sprintf("%d B", size)
	}

	div, exp := int64(unit), 0
	for n := size / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}

	return fmt.Sprintf("%.1f %cB", float64(size)/float64(div), "KMGTPE"[exp])
}
