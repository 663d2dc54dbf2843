package encryption

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"filippo.io/age"
)

// keyFiles locates the library's backup key pair on disk. The recipient file
// is plaintext; the identity file is sealed with an scrypt passphrase.
type keyFiles struct {
	recipientPath string
	identityPath  string
}

func (k keyFiles) exist() bool {
	for _, p := range []string{k.recipientPath, k.identityPath} {
		if _, err := os.Stat(p); err != nil {
			return false
		}
	}
	return true
}

func (k keyFiles) write(id *age.X25519Identity, passphrase string) error {
	for _, p := range []string{k.recipientPath, k.identityPath} {
		if err := os.MkdirAll(filepath.Dir(p), 0700); err != nil {
			return fmt.Errorf("creating key directory: %w", err)
		}
	}

	seal, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("deriving passphrase key: %w", err)
	}
	var sealed bytes.Buffer
	w, err := age.Encrypt(&sealed, seal)
	if err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	if _, err := fmt.Fprintln(w, id.String()); err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("sealing identity: %w", err)
	}

	if err := os.WriteFile(k.identityPath, sealed.Bytes(), 0600); err != nil {
		return fmt.Errorf("writing %s: %w", k.identityPath, err)
	}
	// The recipient goes last so a half-written pair never reports as set up.
	if err := os.WriteFile(k.recipientPath, []byte(id.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing %s: %w", k.recipientPath, err)
	}
	return nil
}

func (k keyFiles) recipient() (age.Recipient, error) {
	f, err := os.Open(k.recipientPath)
	if err != nil {
		return nil, fmt.Errorf("opening public key: %w", err)
	}
	defer f.Close()

	rs, err := age.ParseRecipients(f)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", k.recipientPath, err)
	}
	if len(rs) != 1 {
		return nil, fmt.Errorf("%s holds %d keys, want 1", k.recipientPath, len(rs))
	}
	return rs[0], nil
}

// identity opens the sealed identity file with passphrase.
func (k keyFiles) identity(passphrase string) (age.Identity, error) {
	f, err := os.Open(k.identityPath)
	if err != nil {
		return nil, fmt.Errorf("opening private key: %w", err)
	}
	defer f.Close()

	unseal, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("deriving passphrase key: %w", err)
	}
	r, err := age.Decrypt(f, unseal)
	if err != nil {
		var noMatch *age.NoIdentityMatchError
		if errors.As(err, &noMatch) {
			return nil, ErrWrongPassphrase
		}
		return nil, fmt.Errorf("unsealing %s: %w", k.identityPath, err)
	}
	plain, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("unsealing %s: %w", k.identityPath, err)
	}

	ids, err := age.ParseIdentities(bytes.NewReader(plain))
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	if len(ids) != 1 {
		return nil, fmt.Errorf("private key file holds %d keys, want 1", len(ids))
	}
	return ids[0], nil
}
