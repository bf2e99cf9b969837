package httpapi

import (
	"bytes"
	"encoding/binary"
	"testing"

	registry "github.com/cratery/registry"
)

func encodePublishBody(t *testing.T, metaJSON, tarball []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var lenBuf [4]byte

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(metaJSON)))
	buf.Write(lenBuf[:])
	buf.Write(metaJSON)

	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(tarball)))
	buf.Write(lenBuf[:])
	buf.Write(tarball)

	return buf.Bytes()
}

func TestParsePublishBodyRoundTrips(t *testing.T) {
	metaJSON := []byte(`{"name":"demo-crate","vers":"1.0.0","deps":[],"cksum":"","features":{},"yanked":false}`)
	tarball := []byte("fake-gzipped-tar-bytes")
	body := encodePublishBody(t, metaJSON, tarball)

	meta, gotTarball, err := parsePublishBody(bytes.NewReader(body))
	if err != nil {
		t.Fatalf("parsePublishBody: %v", err)
	}
	if meta.Name != "demo-crate" || meta.Vers != "1.0.0" {
		t.Fatalf("unexpected metadata: %+v", meta)
	}
	if !bytes.Equal(gotTarball, tarball) {
		t.Fatalf("tarball mismatch: got %q want %q", gotTarball, tarball)
	}
}

func TestParsePublishBodyRejectsTruncatedMetadataLength(t *testing.T) {
	_, _, err := parsePublishBody(bytes.NewReader([]byte{0x01, 0x00}))
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParsePublishBodyRejectsTruncatedMetadataBody(t *testing.T) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], 100)
	body := append(lenBuf[:], []byte(`{"name":`)...)

	_, _, err := parsePublishBody(bytes.NewReader(body))
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParsePublishBodyRejectsOversizedMetadataLength(t *testing.T) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], maxUploadMetadataLen+1)

	_, _, err := parsePublishBody(bytes.NewReader(lenBuf[:]))
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestParsePublishBodyRejectsTruncatedTarball(t *testing.T) {
	metaJSON := []byte(`{"name":"demo-crate","vers":"1.0.0"}`)
	full := encodePublishBody(t, metaJSON, []byte("0123456789"))
	// Cut off the last few tarball bytes, leaving the content-length prefix
	// claiming more than is actually present.
	truncated := full[:len(full)-5]

	_, _, err := parsePublishBody(bytes.NewReader(truncated))
	if registry.KindOf(err) != registry.ErrInvalid {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
