package sync

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// FileHash is a whole-file content digest used for the manifest walk's
// change detection and for matching deleted/added pairs as renames. It
// is independent of span.Hash, which hashes individual span bodies with
// a content-type/content-language prefix — this digest only needs to
// answer "did this file's bytes change at all".
func FileHash(content []byte) string {
	sum := blake2b.Sum256(content)
	return hex.EncodeToString(sum[:])
}
