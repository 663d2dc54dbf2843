package encryption

import (
	"bufio"
	"bytes"
	"fmt"
	"io"

	"animlib/internal/animlib"
)

// fakeMagic marks output of FakeEncryptor.
var fakeMagic = []byte("ANIMENC\x00")

// FakeEncryptor frames data with a fixed header instead of encrypting it.
// Selected with encryption type "test"; output is deterministic and needs no
// keys, which keeps backup tests fast.
type FakeEncryptor struct {
	passphrase string
}

var _ animlib.Encryptor = (*FakeEncryptor)(nil)

func NewFakeEncryptor() *FakeEncryptor { return &FakeEncryptor{} }

// Setup remembers passphrase; later Unlock calls must repeat it.
func (e *FakeEncryptor) Setup(passphrase string) error {
	if passphrase == "" {
		return ErrEmptyPassphrase
	}
	e.passphrase = passphrase
	return nil
}

func (e *FakeEncryptor) Encrypt(r io.Reader, w io.Writer) error {
	if _, err := w.Write(fakeMagic); err != nil {
		return err
	}
	_, err := io.Copy(w, r)
	return err
}

func (e *FakeEncryptor) Unlock(passphrase string) (animlib.DecryptionContext, error) {
	if e.passphrase != "" && passphrase != e.passphrase {
		return nil, ErrWrongPassphrase
	}
	return fakeKey{}, nil
}

func (e *FakeEncryptor) IsConfigured() bool { return true }

type fakeKey struct{}

func (fakeKey) Decrypt(r io.Reader, w io.Writer) error {
	br := bufio.NewReader(r)
	head, err := br.Peek(len(fakeMagic))
	if err != nil || !bytes.Equal(head, fakeMagic) {
		return fmt.Errorf("not a test-encrypted stream")
	}
	br.Discard(len(fakeMagic))
	_, err = io.Copy(w, br)
	return err
}
