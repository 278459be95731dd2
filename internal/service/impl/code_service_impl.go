package impl

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base32"
	"encoding/json"
	"fmt"
	"math/big"

	"willvault/internal/service"

	"golang.org/x/crypto/argon2"
)

type Argon2Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"` // iterations
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"` // parallelism
	KeyLen  uint32 `json:"k"` // bytes
	SaltLen uint32 `json:"s"` // bytes
}

var _ service.CodeService = (*CodeServiceImpl)(nil)

// CodeServiceImpl generates unlock codes and OTPs and hashes them with
// argon2id so the raw secret is never persisted.
type CodeServiceImpl struct {
	cur Argon2Params
}

func NewCodeServiceArgon2id() *CodeServiceImpl {
	return &CodeServiceImpl{
		cur: Argon2Params{
			Time:    3,
			Memory:  64 * 1024, // 64 MiB
			Threads: 1,
			KeyLen:  32,
			SaltLen: 16,
		},
	}
}

// NewUnlockCode returns a 26-character base32 code (~130 bits of entropy),
// readable enough to forward in an email but far beyond guessing range.
func (c *CodeServiceImpl) NewUnlockCode() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(buf), nil
}

// NewOtp returns a zero-padded 6-digit code.
func (c *CodeServiceImpl) NewOtp() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func (c *CodeServiceImpl) Hash(code string) (hash, salt, paramsJSON []byte, err error) {
	if code == "" {
		return nil, nil, nil, ErrEmptyCode
	}
	salt = make([]byte, c.cur.SaltLen)
	if _, err = rand.Read(salt); err != nil {
		return nil, nil, nil, err
	}
	hash = argon2.IDKey([]byte(code), salt, c.cur.Time, c.cur.Memory, c.cur.Threads, c.cur.KeyLen)
	paramsJSON, err = json.Marshal(c.cur)
	if err != nil {
		return nil, nil, nil, err
	}
	return hash, salt, paramsJSON, nil
}

func (c *CodeServiceImpl) Verify(code string, hash, salt, paramsJSON []byte) bool {
	if code == "" || len(hash) == 0 {
		return false
	}
	var stored Argon2Params
	if err := json.Unmarshal(paramsJSON, &stored); err != nil {
		return false
	}
	calculated := argon2.IDKey([]byte(code), salt, stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	return subtle.ConstantTimeCompare(calculated, hash) == 1
}
