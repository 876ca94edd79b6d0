package model

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"

	sf "github.com/tinode/snowflake"
	"golang.org/x/crypto/xtea"
)

// Length of base64-encoded 8 byte id without padding.
const idBase64Unpadded = 11

// IDGenerator holds snowflake and encryption parameters. It produces unique
// random-looking ids for placeholder topic names and local records.
type IDGenerator struct {
	seq    *sf.SnowFlake
	cipher *xtea.Cipher
}

// Init initialises the id generator. If key is nil, a random key is used.
func (ug *IDGenerator) Init(workerID uint, key []byte) error {
	var err error

	if key == nil {
		key = make([]byte, xtea.BlockSize*2)
		if _, err = rand.Read(key); err != nil {
			return err
		}
	}

	if ug.seq == nil {
		if ug.seq, err = sf.NewSnowFlake(uint32(workerID)); err != nil {
			return err
		}
	}
	if ug.cipher == nil {
		ug.cipher, err = xtea.NewCipher(key)
	}

	return err
}

// Get generates a unique weakly encrypted id.
func (ug *IDGenerator) Get() uint64 {
	buf, err := ug.idBuffer()
	if err != nil {
		return 0
	}
	return binary.LittleEndian.Uint64(buf)
}

// GetStr generates a unique id then returns it as base64-encrypted string.
func (ug *IDGenerator) GetStr() string {
	buf, err := ug.idBuffer()
	if err != nil {
		return ""
	}
	return base64.RawURLEncoding.EncodeToString(buf)[:idBase64Unpadded]
}

// idBuffer returns a byte array holding the id bytes.
func (ug *IDGenerator) idBuffer() ([]byte, error) {
	id, err := ug.seq.Next()
	if err != nil {
		return nil, err
	}

	var src = make([]byte, 8)
	var dst = make([]byte, 8)
	binary.LittleEndian.PutUint64(src, id)
	ug.cipher.Encrypt(dst, src)

	return dst, nil
}
