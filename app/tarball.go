package app

import (
	"archive/tar"
	"bytes"
	"io"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// extractReadme scans the gzipped tar stream a publish uploads and returns
// the contents of the first entry whose file name contains "README", per
// spec §4.3. It returns (nil, nil) if no such entry exists.
func extractReadme(tarball []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(tarball))
	if err != nil {
		return nil, err
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !strings.Contains(hdr.Name, "README") {
			continue
		}
		return io.ReadAll(tr)
	}
}
