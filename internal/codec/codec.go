// Package codec turns snapshots into the bytes stored in a vault and back.
//
// An encoded snapshot is JSON, optionally gzip-compressed, optionally
// encrypted. Decoding sniffs each layer instead of trusting the file name,
// so snapshots renamed by hand or written by older tools still restore.
package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/gabriel-vasile/mimetype"
	"github.com/klauspost/compress/gzip"

	"catsync-go/internal/catsync"
	"catsync-go/internal/model"
)

// MaxDecodedSize bounds the decompressed size of a snapshot.
const MaxDecodedSize = 512 << 20

// ErrEncrypted is returned by Decode when the payload is encrypted and no
// unlock function was given.
var ErrEncrypted = errors.New("snapshot is encrypted")

var (
	ageHeader = []byte("age-encryption.org/v1\n")
	utf8BOM   = []byte{0xef, 0xbb, 0xbf}
)

// Format is the outermost layer of an encoded snapshot.
type Format int

const (
	FormatUnknown Format = iota
	FormatJSON
	FormatGzip
	FormatAge
)

func (f Format) String() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatGzip:
		return "gzip"
	case FormatAge:
		return "age"
	default:
		return "unknown"
	}
}

// Options controls Encode.
type Options struct {
	Compress bool
	// Encryptor encrypts the payload when non-nil.
	Encryptor catsync.Encryptor
}

// Extension returns the file name suffix for payloads encoded with opts.
func (o Options) Extension() string {
	ext := ".json"
	if o.Compress {
		ext += ".gz"
	}
	if o.Encryptor != nil {
		ext += ".age"
	}
	return ext
}

// Encode serializes snap and applies the configured layers.
func Encode(snap *model.Snapshot, opts Options) ([]byte, error) {
	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}

	if opts.Compress {
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, fmt.Errorf("creating gzip writer: %w", err)
		}
		if _, err := zw.Write(data); err != nil {
			return nil, fmt.Errorf("compressing snapshot: %w", err)
		}
		if err := zw.Close(); err != nil {
			return nil, fmt.Errorf("compressing snapshot: %w", err)
		}
		data = buf.Bytes()
	}

	if opts.Encryptor != nil {
		var buf bytes.Buffer
		if err := opts.Encryptor.Encrypt(bytes.NewReader(data), &buf); err != nil {
			return nil, fmt.Errorf("encrypting snapshot: %w", err)
		}
		data = buf.Bytes()
	}
	return data, nil
}

// Sniff reports the outermost layer of data.
func Sniff(data []byte) Format {
	if bytes.HasPrefix(data, ageHeader) {
		return FormatAge
	}
	if mimetype.Detect(data).Is("application/gzip") {
		return FormatGzip
	}
	// Only the first byte is checked: malformed JSON must reach the schema
	// detector so it is reported as a schema error, not a codec error.
	trimmed := bytes.TrimLeft(bytes.TrimPrefix(data, utf8BOM), " \t\r\n")
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		return FormatJSON
	}
	return FormatUnknown
}

// Decode strips every layer from an encoded snapshot and returns the raw JSON.
// unlock is called at most once, and only if the payload is encrypted.
// Payloads of unknown format are handed to the decryptor as well, since
// encryptors other than age use their own framing.
func Decode(data []byte, unlock func() (catsync.DecryptionContext, error)) ([]byte, error) {
	decrypted, decompressed := false, false
	for {
		switch f := Sniff(data); {
		case f == FormatJSON:
			return bytes.TrimPrefix(data, utf8BOM), nil

		case f == FormatGzip && !decompressed:
			out, err := gunzip(data)
			if err != nil {
				return nil, err
			}
			data, decompressed = out, true

		case (f == FormatAge || f == FormatUnknown) && !decrypted && !decompressed:
			if unlock == nil {
				if f == FormatAge {
					return nil, ErrEncrypted
				}
				return nil, fmt.Errorf("unsupported snapshot payload (%s)", mimetype.Detect(data))
			}
			dc, err := unlock()
			if err != nil {
				return nil, fmt.Errorf("unlocking snapshot: %w", err)
			}
			var buf bytes.Buffer
			if err := dc.Decrypt(bytes.NewReader(data), &buf); err != nil {
				return nil, fmt.Errorf("decrypting snapshot: %w", err)
			}
			data, decrypted = buf.Bytes(), true

		default:
			return nil, fmt.Errorf("unsupported snapshot payload (%s)", mimetype.Detect(data))
		}
	}
}

func gunzip(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening gzip stream: %w", err)
	}
	defer zr.Close()

	out, err := io.ReadAll(io.LimitReader(zr, MaxDecodedSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing snapshot: %w", err)
	}
	if len(out) > MaxDecodedSize {
		return nil, fmt.Errorf("decompressed snapshot exceeds %d bytes", MaxDecodedSize)
	}
	return out, nil
}
