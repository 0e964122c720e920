package helper

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/crypto/pbkdf2"
)

// ErrDecryptAuth is returned when an artifact fails GCM authentication,
// which is what decrypting with the wrong key looks like.
var ErrDecryptAuth = errors.New("decryption authentication failed")

const (
	keySize    = 32
	nonceSize  = 12
	kdfIters   = 210_000
	chunkSize  = 64 * 1024
	saltLabel  = "zarrinsoft/backup kdf salt v1"
	fileMagic  = "ZSB1"
	flagFinal  = 1
	flagMiddle = 0
)

// FileCipher holds an AES-256 key derived once per process lifetime.
type FileCipher struct {
	key  []byte
	aead cipher.AEAD
}

// NewFileCipher derives the key from the master secret via PBKDF2-SHA256.
// The salt is itself derived from the secret, so the same secret always
// yields the same key and artifacts stay decryptable across processes.
func NewFileCipher(masterSecret string) (*FileCipher, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("master secret is empty")
	}
	saltSum := sha256.Sum256([]byte(saltLabel + masterSecret))
	key := pbkdf2.Key([]byte(masterSecret), saltSum[:16], kdfIters, keySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return &FileCipher{key: key, aead: aead}, nil
}

// KeyFingerprint returns the hex SHA-256 of the derived key, recorded on
// backup records as a verification aid. It does not reveal the key.
func (c *FileCipher) KeyFingerprint() string {
	sum := sha256.Sum256(c.key)
	return hex.EncodeToString(sum[:])
}

// EncryptFile encrypts srcPath to dstPath in framed chunks so arbitrarily
// large dumps are never loaded into memory.
//
// Format: magic, 12-byte random base nonce, then per chunk a 4-byte
// big-endian ciphertext length followed by the sealed chunk. Each chunk's
// nonce is the base nonce XOR the chunk counter, and the counter plus a
// final-chunk flag ride in the AAD, so reordering or truncating frames
// fails authentication.
func (c *FileCipher) EncryptFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	fail := func(err error) error {
		dst.Close()
		os.Remove(dstPath)
		return err
	}

	baseNonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, baseNonce); err != nil {
		return fail(fmt.Errorf("generate nonce: %w", err))
	}
	if _, err := dst.Write([]byte(fileMagic)); err != nil {
		return fail(fmt.Errorf("write header: %w", err))
	}
	if _, err := dst.Write(baseNonce); err != nil {
		return fail(fmt.Errorf("write header: %w", err))
	}

	buf := make([]byte, chunkSize)
	var counter uint64
	for {
		n, readErr := io.ReadFull(src, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return fail(fmt.Errorf("read source: %w", readErr))
		}
		final := readErr != nil // short read means the source is drained

		flag := byte(flagMiddle)
		if final {
			flag = flagFinal
		}
		sealed := c.aead.Seal(nil, chunkNonce(baseNonce, counter), buf[:n], chunkAAD(counter, flag))

		var frameLen [4]byte
		binary.BigEndian.PutUint32(frameLen[:], uint32(len(sealed)))
		if _, err := dst.Write(frameLen[:]); err != nil {
			return fail(fmt.Errorf("write frame: %w", err))
		}
		if _, err := dst.Write(sealed); err != nil {
			return fail(fmt.Errorf("write frame: %w", err))
		}

		counter++
		if final {
			break
		}
	}

	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

// DecryptFile decrypts srcPath to dstPath. A wrong key, a tampered frame or
// a truncated file all surface as ErrDecryptAuth; corrupt plaintext is never
// returned silently.
func (c *FileCipher) DecryptFile(srcPath, dstPath string) error {
	src, err := os.Open(srcPath)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	header := make([]byte, len(fileMagic)+nonceSize)
	if _, err := io.ReadFull(src, header); err != nil {
		return fmt.Errorf("%w: short header", ErrDecryptAuth)
	}
	if string(header[:len(fileMagic)]) != fileMagic {
		return fmt.Errorf("%w: bad magic", ErrDecryptAuth)
	}
	baseNonce := header[len(fileMagic):]

	dst, err := os.Create(dstPath)
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}

	fail := func(err error) error {
		dst.Close()
		os.Remove(dstPath)
		return err
	}

	var counter uint64
	sawFinal := false
	frameLen := make([]byte, 4)
	for !sawFinal {
		if _, err := io.ReadFull(src, frameLen); err != nil {
			return fail(fmt.Errorf("%w: truncated stream", ErrDecryptAuth))
		}
		n := binary.BigEndian.Uint32(frameLen)
		if n > chunkSize+uint32(c.aead.Overhead()) {
			return fail(fmt.Errorf("%w: oversized frame", ErrDecryptAuth))
		}
		sealed := make([]byte, n)
		if _, err := io.ReadFull(src, sealed); err != nil {
			return fail(fmt.Errorf("%w: truncated frame", ErrDecryptAuth))
		}

		// The final flag is part of the AAD, so try middle first and fall
		// back to final; whichever authenticates is the true flag.
		plain, openErr := c.aead.Open(nil, chunkNonce(baseNonce, counter), sealed, chunkAAD(counter, flagMiddle))
		if openErr != nil {
			plain, openErr = c.aead.Open(nil, chunkNonce(baseNonce, counter), sealed, chunkAAD(counter, flagFinal))
			if openErr != nil {
				return fail(fmt.Errorf("%w: chunk %d", ErrDecryptAuth, counter))
			}
			sawFinal = true
		}

		if _, err := dst.Write(plain); err != nil {
			return fail(fmt.Errorf("write output: %w", err))
		}
		counter++
	}

	if err := dst.Close(); err != nil {
		os.Remove(dstPath)
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}

func chunkNonce(base []byte, counter uint64) []byte {
	nonce := make([]byte, nonceSize)
	copy(nonce, base)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], counter)
	for i := 0; i < 8; i++ {
		nonce[nonceSize-8+i] ^= ctr[i]
	}
	return nonce
}

func chunkAAD(counter uint64, flag byte) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, counter)
	aad[8] = flag
	return aad
}
