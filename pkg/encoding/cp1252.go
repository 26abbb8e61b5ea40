// Package encoding provides text encoding utilities for Quake 3 file formats.
package encoding

import (
	"bytes"
	"path"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

// CP1252ToUTF8 converts Windows-1252 encoded bytes to a UTF-8 string.
// Pure ASCII input is returned without conversion. Returns the original
// bytes as a string if conversion fails.
func CP1252ToUTF8(data []byte) string {
	if isASCII(data) {
		return string(data)
	}
	decoder := charmap.Windows1252.NewDecoder()
	result, _, err := transform.Bytes(decoder, data)
	if err != nil {
		return string(data)
	}
	return string(result)
}

// UTF8ToCP1252 converts a UTF-8 string to Windows-1252 bytes.
// Returns the original bytes if the string has no Windows-1252 representation.
func UTF8ToCP1252(s string) []byte {
	encoder := charmap.Windows1252.NewEncoder()
	result, _, err := transform.Bytes(encoder, []byte(s))
	if err != nil {
		return []byte(s)
	}
	return result
}

func isASCII(data []byte) bool {
	for _, b := range data {
		if b >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// FixedString converts a fixed-size, NUL-terminated Windows-1252 buffer to UTF-8.
func FixedString(data []byte) string {
	if i := bytes.IndexByte(data, 0); i >= 0 {
		data = data[:i]
	}
	return CP1252ToUTF8(data)
}

// UTF8ToFixedString encodes s into a NUL-padded buffer of the given size.
// Strings longer than size-1 bytes are truncated so the result stays terminated.
func UTF8ToFixedString(s string, size int) []byte {
	result := make([]byte, size)
	encoded := UTF8ToCP1252(s)
	if len(encoded) > size-1 {
		encoded = encoded[:size-1]
	}
	copy(result, encoded)
	return result
}

// NormalizePath normalizes a game path for case-insensitive lookup.
// Quake 3 paths are case-insensitive and may use either separator.
func NormalizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.TrimPrefix(p, "/")
	return strings.ToLower(p)
}

// StripExtension removes the file extension of the last path element.
func StripExtension(p string) string {
	ext := path.Ext(strings.ReplaceAll(p, "\\", "/"))
	return p[:len(p)-len(ext)]
}
