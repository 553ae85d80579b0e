package keys

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// KeyStore is a simple local-first key management system for the CLI.
//
// Features:
// - Stores secp256k1 seeds on the local filesystem (0600 files)
// - Generates deterministic per-session subkeys
// - No external dependencies
//
// This is designed to be straightforward and explicit; wallet-backed signers
// bypass it entirely.
type KeyStore struct {
	Directory string
}

type KeyEntry struct {
	Identifier string
	Sessions   []string
}

func GetDefaultDirectory() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".xdao", "consent", "keys"), nil
}

func CreateKeyStore(directory string) (*KeyStore, error) {
	if directory == "" {
		var err error
		directory, err = GetDefaultDirectory()
		if err != nil {
			return nil, err
		}
	}
	return &KeyStore{Directory: directory}, nil
}

func (ks *KeyStore) rootKeyFilePath(identifier string) string {
	return filepath.Join(ks.Directory, identifier, "root.key")
}

func (ks *KeyStore) sessionKeyFilePath(identifier, session string) string {
	return filepath.Join(ks.Directory, identifier, "sessions", session+".key")
}

func CheckKeyName(identifier string) error {
	if identifier == "" {
		return errors.New("identifier cannot be empty")
	}
	for _, char := range identifier {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in identifier", char)
	}
	return nil
}

func CheckSessionName(session string) error {
	if session == "" {
		return errors.New("session cannot be empty")
	}
	for _, char := range session {
		if (char >= 'a' && char <= 'z') || (char >= 'A' && char <= 'Z') || (char >= '0' && char <= '9') || char == '-' || char == '_' {
			continue
		}
		return fmt.Errorf("invalid character %q in session", char)
	}
	return nil
}

func (ks *KeyStore) saveSeedToFile(filePath string, seed []byte, overwrite bool) error {
	if len(seed) != SeedSize {
		return fmt.Errorf("expected seed length of %d bytes", SeedSize)
	}
	if err := os.MkdirAll(filepath.Dir(filePath), 0o700); err != nil {
		return err
	}
	flags := os.O_WRONLY | os.O_CREATE
	if overwrite {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_EXCL
	}
	file, err := os.OpenFile(filePath, flags, 0o600)
	if err != nil {
		return err
	}
	defer file.Close()
	if _, err := file.WriteString(fmt.Sprintf("%x\n", seed)); err != nil {
		return err
	}
	return file.Close()
}

func (ks *KeyStore) loadSeedFromFile(filePath string) ([]byte, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return ParseSeedHex(strings.TrimSpace(string(data)))
}

// InitializeRootKey stores seed as the root key for identifier and returns
// the derived identity address.
func (ks *KeyStore) InitializeRootKey(identifier string, seed []byte, overwrite bool) (address string, filePath string, err error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", "", err
	}
	signer, err := NewSignerFromSeed(seed)
	if err != nil {
		return "", "", err
	}
	filePath = ks.rootKeyFilePath(identifier)
	if err := ks.saveSeedToFile(filePath, seed, overwrite); err != nil {
		return "", "", err
	}
	return signer.Address(), filePath, nil
}

// DeriveSessionKey derives and stores a session key under an existing root.
func (ks *KeyStore) DeriveSessionKey(from, session string, overwrite bool) (address string, filePath string, err error) {
	if err := CheckKeyName(from); err != nil {
		return "", "", err
	}
	rootSeed, err := ks.loadSeedFromFile(ks.rootKeyFilePath(from))
	if err != nil {
		return "", "", err
	}
	sessionSeed, err := DeriveSessionSeed(rootSeed, session)
	if err != nil {
		return "", "", err
	}
	signer, err := NewSignerFromSeed(sessionSeed)
	if err != nil {
		return "", "", err
	}
	filePath = ks.sessionKeyFilePath(from, session)
	if err := ks.saveSeedToFile(filePath, sessionSeed, overwrite); err != nil {
		return "", "", err
	}
	return signer.Address(), filePath, nil
}

// ExportAddress returns the identity address for a stored key.
func (ks *KeyStore) ExportAddress(identifier string, session string) (string, error) {
	if err := CheckKeyName(identifier); err != nil {
		return "", err
	}
	var seed []byte
	var err error
	if session == "" {
		seed, err = ks.loadSeedFromFile(ks.rootKeyFilePath(identifier))
	} else {
		if err := CheckSessionName(session); err != nil {
			return "", err
		}
		seed, err = ks.loadSeedFromFile(ks.sessionKeyFilePath(identifier, session))
	}
	if err != nil {
		return "", err
	}
	signer, err := NewSignerFromSeed(seed)
	if err != nil {
		return "", err
	}
	return signer.Address(), nil
}

// LoadSigner resolves a signer from, in precedence order, a literal hex seed,
// a key file path, or a stored key name (optionally a session subkey).
func (ks *KeyStore) LoadSigner(seedHex, signerName, signerSession, keyFile string) (*LocalSigner, error) {
	var seed []byte
	var err error
	switch {
	case seedHex != "":
		seed, err = ParseSeedHex(seedHex)
	case keyFile != "":
		seed, err = ks.loadSeedFromFile(keyFile)
	case signerName != "":
		if err := CheckKeyName(signerName); err != nil {
			return nil, err
		}
		if signerSession == "" {
			seed, err = ks.loadSeedFromFile(ks.rootKeyFilePath(signerName))
		} else {
			if err := CheckSessionName(signerSession); err != nil {
				return nil, err
			}
			seed, err = ks.loadSeedFromFile(ks.sessionKeyFilePath(signerName, signerSession))
		}
	default:
		return nil, errors.New("no signer provided")
	}
	if err != nil {
		return nil, err
	}
	return NewSignerFromSeed(seed)
}

// ListKeys enumerates stored identifiers and their sessions, sorted.
func (ks *KeyStore) ListKeys() ([]KeyEntry, error) {
	entries, err := os.ReadDir(ks.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var out []KeyEntry
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		identifier := entry.Name()
		ke := KeyEntry{Identifier: identifier}
		sessions, err := os.ReadDir(filepath.Join(ks.Directory, identifier, "sessions"))
		if err == nil {
			for _, s := range sessions {
				name := s.Name()
				if s.IsDir() || !strings.HasSuffix(name, ".key") {
					continue
				}
				ke.Sessions = append(ke.Sessions, strings.TrimSuffix(name, ".key"))
			}
			sort.Strings(ke.Sessions)
		}
		out = append(out, ke)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identifier < out[j].Identifier })
	return out, nil
}
