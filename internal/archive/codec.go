package archive

import (
	"archive/tar"
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"time"
)

// Member is one file inside an archive blob. Name is the deterministic
// internal entry name; the original relative path travels in the manifest,
// not in the archive.
type Member struct {
	Name    string
	ModTime time.Time
	Data    []byte
}

// Codec packs a set of members into a single blob and back. Compression is
// for size only: unpacking must reproduce byte-identical member contents.
type Codec interface {
	// Name is the codec identifier used in configuration ("zip", "tzst").
	Name() string
	// Extension is the archive key suffix including the leading dot.
	Extension() string
	Pack(members []Member) ([]byte, error)
	Unpack(blob []byte) ([]Member, error)
}

// ForName returns the codec registered under name. The zip codec is the
// default when name is empty.
func ForName(name string) (Codec, error) {
	switch name {
	case "", "zip":
		return zipCodec{}, nil
	case "tzst", "tar.zst":
		return tzstCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown archive format: %s", name)
	}
}

// ============================================================================
// ZIP CODEC (default)
// ============================================================================

type zipCodec struct{}

func (zipCodec) Name() string      { return "zip" }
func (zipCodec) Extension() string { return ".zip" }

func (zipCodec) Pack(members []Member) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)

	for _, m := range members {
		hdr := &zip.FileHeader{
			Name:     m.Name,
			Method:   zip.Deflate,
			Modified: m.ModTime,
		}
		w, err := zw.CreateHeader(hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to create zip entry %s: %w", m.Name, err)
		}
		if _, err := w.Write(m.Data); err != nil {
			return nil, fmt.Errorf("failed to write zip entry %s: %w", m.Name, err)
		}
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize zip: %w", err)
	}
	return buf.Bytes(), nil
}

func (zipCodec) Unpack(blob []byte) ([]Member, error) {
	zr, err := zip.NewReader(bytes.NewReader(blob), int64(len(blob)))
	if err != nil {
		return nil, fmt.Errorf("failed to open zip: %w", err)
	}

	members := make([]Member, 0, len(zr.File))
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open zip entry %s: %w", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read zip entry %s: %w", f.Name, err)
		}
		members = append(members, Member{Name: f.Name, ModTime: f.Modified, Data: data})
	}
	return members, nil
}

// ============================================================================
// TAR+ZSTD CODEC
// ============================================================================

type tzstCodec struct{}

func (tzstCodec) Name() string      { return "tzst" }
func (tzstCodec) Extension() string { return ".tar.zst" }

func (tzstCodec) Pack(members []Member) ([]byte, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)

	for _, m := range members {
		hdr := &tar.Header{
			Name:    m.Name,
			Mode:    0644,
			Size:    int64(len(m.Data)),
			ModTime: m.ModTime,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return nil, fmt.Errorf("failed to write tar header %s: %w", m.Name, err)
		}
		if _, err := tw.Write(m.Data); err != nil {
			return nil, fmt.Errorf("failed to write tar entry %s: %w", m.Name, err)
		}
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize tar: %w", err)
	}

	return compressZstd(buf.Bytes()), nil
}

func (tzstCodec) Unpack(blob []byte) ([]Member, error) {
	raw, err := decompressZstd(blob)
	if err != nil {
		return nil, err
	}

	tr := tar.NewReader(bytes.NewReader(raw))
	var members []Member
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar: %w", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry %s: %w", hdr.Name, err)
		}
		members = append(members, Member{Name: hdr.Name, ModTime: hdr.ModTime, Data: data})
	}
	return members, nil
}
