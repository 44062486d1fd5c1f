package encryption

import (
	"bytes"
	"fmt"
	"io"

	"catalog-go/internal/catalog"
)

var testHeader = []byte("CATENC\x00\x00")

// TestEncryptor is a deterministic stand-in for tests and the "test"
// encryption type. It prepends a fixed header on encrypt and strips it on
// decrypt. The passphrase passed to Setup is the only one Unlock accepts.
type TestEncryptor struct {
	passphrase string
	setup      bool
}

var _ catalog.Encryptor = (*TestEncryptor)(nil)

func NewTestEncryptor() *TestEncryptor {
	return &TestEncryptor{}
}

func (e *TestEncryptor) Setup(passphrase string) error {
	e.passphrase = passphrase
	e.setup = true
	return nil
}

func (e *TestEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(testHeader); err != nil {
		return fmt.Errorf("writing test header: %w", err)
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}

// Unlock accepts any passphrase until Setup has been called.
func (e *TestEncryptor) Unlock(passphrase string) (catalog.DecryptionContext, error) {
	if e.setup && passphrase != e.passphrase {
		return nil, fmt.Errorf("incorrect passphrase")
	}
	return &TestDecryptionContext{}, nil
}

func (e *TestEncryptor) IsConfigured() bool {
	return true
}

// TestDecryptionContext strips the header added by TestEncryptor.
type TestDecryptionContext struct{}

var _ catalog.DecryptionContext = (*TestDecryptionContext)(nil)

func (c *TestDecryptionContext) Decrypt(r io.Reader, w io.Writer) error {
	header := make([]byte, len(testHeader))
	if _, err := io.ReadFull(r, header); err != nil {
		return fmt.Errorf("reading test header: %w", err)
	}
	if !bytes.Equal(header, testHeader) {
		return fmt.Errorf("invalid test encryption header")
	}
	if _, err := io.Copy(w, r); err != nil {
		return fmt.Errorf("copying data: %w", err)
	}
	return nil
}
