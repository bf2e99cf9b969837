package httpapi

import (
	"encoding/binary"
	"encoding/json"
	"io"

	registry "github.com/cratery/registry"
)

// maxUploadMetadataLen bounds the metadata_len prefix of a publish body
// against a pathological value before allocating, per spec §4.5's upload
// framing.
const maxUploadMetadataLen = 16 << 20 // 16 MiB of JSON is already absurd

// parsePublishBody decodes the bit-exact wire framing spec §6 names: a
// little-endian u32 metadata length, the metadata JSON, a little-endian u32
// content length, then the gzipped tar bytes.
func parsePublishBody(body io.Reader) (*registry.UploadMetadata, []byte, error) {
	metaLen, err := readU32LE(body)
	if err != nil {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "truncated metadata length", err)
	}
	if metaLen > maxUploadMetadataLen {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "metadata segment too large", nil)
	}
	metaBytes := make([]byte, metaLen)
	if _, err := io.ReadFull(body, metaBytes); err != nil {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "truncated metadata body", err)
	}
	var meta registry.UploadMetadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "malformed metadata JSON", err)
	}

	contentLen, err := readU32LE(body)
	if err != nil {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "truncated content length", err)
	}
	tarball := make([]byte, contentLen)
	if _, err := io.ReadFull(body, tarball); err != nil {
		return nil, nil, registry.New(registry.ErrInvalid, "parsePublishBody", "truncated tarball body", err)
	}
	return &meta, tarball, nil
}

func readU32LE(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
