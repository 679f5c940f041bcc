package encryption

import (
	"fmt"
	"io"

	"catsync-go/internal/catsync"
)

// NoneEncryptor stores snapshots in the clear. Use it only with vaults that
// are already private, such as a local directory.
type NoneEncryptor struct{}

var _ catsync.Encryptor = NoneEncryptor{}

func (NoneEncryptor) Setup(string) error { return nil }

func (NoneEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

func (NoneEncryptor) Unlock(string) (catsync.DecryptionContext, error) {
	return noneDecryptionContext{}, nil
}

func (NoneEncryptor) IsConfigured() bool { return true }

type noneDecryptionContext struct{}

func (noneDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
