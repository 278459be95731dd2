package service

// CodeService generates and verifies the secrets used by the unlock
// protocol: long unguessable credential codes and 6-digit OTPs. Only
// argon2id digests are persisted; Verify is constant-time.
type CodeService interface {
	NewUnlockCode() (string, error)
	NewOtp() (string, error)
	Hash(code string) (hash, salt, paramsJSON []byte, err error)
	Verify(code string, hash, salt, paramsJSON []byte) bool
}
