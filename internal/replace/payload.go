package replace

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// PayloadName is the file name the scanner executable is written under
const PayloadName = "replaceparser.exe"

// ErrNoPayload is returned when no scanner executable could be located
var ErrNoPayload = errors.New("replace scanner payload not found")

var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Payload materializes the scanner executable inside a working directory
type Payload interface {
	Materialize(dir string) (string, error)
}

// BytesPayload is an in-memory executable image, optionally zstd-compressed
type BytesPayload []byte

// Materialize implements Payload
func (p BytesPayload) Materialize(dir string) (string, error) {
	return writeExecutable(dir, p)
}

// FilePayload copies an executable from disk, decompressing it when it is a zstd frame
type FilePayload struct {
	Path string
}

// Materialize implements Payload
func (p FilePayload) Materialize(dir string) (string, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return "", fmt.Errorf("read payload: %w", err)
	}
	return writeExecutable(dir, data)
}

func writeExecutable(dir string, data []byte) (string, error) {
	image, err := decodePayload(data)
	if err != nil {
		return "", err
	}
	if len(image) == 0 {
		return "", fmt.Errorf("empty payload")
	}
	exe := filepath.Join(dir, PayloadName)
	if err := os.WriteFile(exe, image, 0o755); err != nil {
		return "", fmt.Errorf("write payload: %w", err)
	}
	return exe, nil
}

// decodePayload returns data unchanged unless it starts with the zstd frame magic
func decodePayload(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, zstdMagic) {
		return data, nil
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer dec.Close()

	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress payload: %w", err)
	}
	return out, nil
}

// DiscoverPayload looks for replaceparser.exe or replaceparser.exe.zst in each directory
func DiscoverPayload(dirs ...string) (Payload, error) {
	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		for _, name := range []string{PayloadName, PayloadName + ".zst"} {
			candidate := filepath.Join(dir, name)
			if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
				return FilePayload{Path: candidate}, nil
			}
		}
	}
	return nil, ErrNoPayload
}
