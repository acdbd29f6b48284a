package eventstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/krew-solutions/whizbang-go/ids"
	"github.com/krew-solutions/whizbang-go/kms"
	"github.com/krew-solutions/whizbang-go/session"
)

// EnvelopeCodec seals/opens event payload and metadata bytes at rest.
// Encrypt/Decrypt are scoped per stream so a compromised key only exposes
// one stream's history.
type EnvelopeCodec interface {
	Encrypt(s session.Session, streamID ids.StreamId, plaintext []byte) ([]byte, error)
	Decrypt(s session.Session, streamID ids.StreamId, ciphertext []byte) ([]byte, error)
}

// NoopCodec leaves bytes untouched. The default when no encryption is
// configured.
type NoopCodec struct{}

func (NoopCodec) Encrypt(_ session.Session, _ ids.StreamId, plaintext []byte) ([]byte, error) {
	return plaintext, nil
}

func (NoopCodec) Decrypt(_ session.Session, _ ids.StreamId, ciphertext []byte) ([]byte, error) {
	return ciphertext, nil
}

const dekNonceSize = 12

// KmsCodec implements per-stream envelope encryption on top of the
// teacher's KMS package: each stream gets its own AES-256 data-encryption
// key (DEK), generated once via kms.KeyManagementService.GenerateDek and
// persisted (encrypted under the service's KEK) in a small mapping table
// this codec owns. Decrypted DEKs are cached in-process so steady-state
// reads don't round-trip through DecryptDek on every event — the
// identitymap LRU cache the rest of the teacher's session package uses is
// private to that package, so this is a small purpose-built cache instead.
type KmsCodec struct {
	kms      kms.KeyManagementService
	table    string
	mu       sync.Mutex
	dekCache map[string][]byte
}

// NewKmsCodec builds a codec backed by the given KMS. table names the
// (stream_id -> encrypted_dek) mapping this codec manages; it defaults to
// "wh_stream_dek".
func NewKmsCodec(keyService kms.KeyManagementService, table string) *KmsCodec {
	if table == "" {
		table = "wh_stream_dek"
	}
	return &KmsCodec{kms: keyService, table: table, dekCache: make(map[string][]byte)}
}

// Setup creates the stream/DEK mapping table.
func (c *KmsCodec) Setup(s session.Session) error {
	db := s.(session.DbSession)
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			stream_id     uuid PRIMARY KEY,
			encrypted_dek bytea NOT NULL
		)
	`, c.table)
	_, err := db.Connection().Exec(sql)
	return err
}

func (c *KmsCodec) Encrypt(s session.Session, streamID ids.StreamId, plaintext []byte) ([]byte, error) {
	dek, err := c.dekForStream(s, streamID)
	if err != nil {
		return nil, err
	}
	return seal(dek, plaintext)
}

func (c *KmsCodec) Decrypt(s session.Session, streamID ids.StreamId, ciphertext []byte) ([]byte, error) {
	dek, err := c.dekForStream(s, streamID)
	if err != nil {
		return nil, err
	}
	return open(dek, ciphertext)
}

func (c *KmsCodec) dekForStream(s session.Session, streamID ids.StreamId) ([]byte, error) {
	key := streamID.String()

	c.mu.Lock()
	if dek, ok := c.dekCache[key]; ok {
		c.mu.Unlock()
		return dek, nil
	}
	c.mu.Unlock()

	db := s.(session.DbSession)
	selectSQL := fmt.Sprintf(`SELECT encrypted_dek FROM %s WHERE stream_id = $1`, c.table)
	var encryptedDek []byte
	err := db.Connection().QueryRow(selectSQL, key).Scan(&encryptedDek)
	if err != nil {
		// Not found: mint a fresh DEK and try to claim this stream.
		dek, newEncryptedDek, genErr := c.kms.GenerateDek(s, key)
		if genErr != nil {
			return nil, genErr
		}

		insertSQL := fmt.Sprintf(`
			INSERT INTO %s (stream_id, encrypted_dek) VALUES ($1, $2)
			ON CONFLICT (stream_id) DO NOTHING
		`, c.table)
		if _, err := db.Connection().Exec(insertSQL, key, newEncryptedDek); err != nil {
			return nil, err
		}

		// Someone else may have won the race; re-read to converge on a
		// single DEK per stream regardless of who inserted it.
		if err := db.Connection().QueryRow(selectSQL, key).Scan(&encryptedDek); err != nil {
			return nil, err
		}
		if string(encryptedDek) == string(newEncryptedDek) {
			c.cacheDek(key, dek)
			return dek, nil
		}
	}

	dek, err := c.kms.DecryptDek(s, key, encryptedDek)
	if err != nil {
		return nil, err
	}
	c.cacheDek(key, dek)
	return dek, nil
}

func (c *KmsCodec) cacheDek(key string, dek []byte) {
	c.mu.Lock()
	c.dekCache[key] = dek
	c.mu.Unlock()
}

func seal(dek, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, dekNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

func open(dek, ciphertext []byte) ([]byte, error) {
	if len(ciphertext) < dekNonceSize {
		return nil, fmt.Errorf("eventstore: ciphertext too short")
	}
	block, err := aes.NewCipher(dek)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	nonce, ct := ciphertext[:dekNonceSize], ciphertext[dekNonceSize:]
	return aead.Open(nil, nonce, ct, nil)
}
