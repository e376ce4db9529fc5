package span

import (
	"bytes"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// canonicalize normalizes content before hashing: normalize line
// endings to LF and strip trailing whitespace from each line, nothing
// more aggressive, so a docstring addition still changes the hash and
// only pure end-of-line whitespace does not.
func canonicalize(content []byte) []byte {
	s := strings.ReplaceAll(string(content), "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return []byte(strings.Join(lines, "\n"))
}

// Hash computes span_hash = blake2b-128(content_type 0x00
// content_language 0x00 canonicalized_text).
func Hash(contentType, contentLanguage string, content []byte) string {
	h, err := blake2b.New(16, nil)
	if err != nil {
		// blake2b.New only errors on an invalid key or out-of-range size;
		// 16 bytes with a nil key is always valid.
		panic(err)
	}
	var buf bytes.Buffer
	buf.WriteString(contentType)
	buf.WriteByte(0)
	buf.WriteString(contentLanguage)
	buf.WriteByte(0)
	buf.Write(canonicalize(content))
	h.Write(buf.Bytes())
	sum := h.Sum(nil)
	return hexEncode(sum)
}

const hexDigits = "0123456789abcdef"

func hexEncode(b []byte) string {
	out := make([]byte, len(b)*2)
	for i, v := range b {
		out[i*2] = hexDigits[v>>4]
		out[i*2+1] = hexDigits[v&0x0f]
	}
	return string(out)
}
