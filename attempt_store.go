package opaquegate

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/redis/go-redis/v9"
)

const attemptRecordVersion1 = 1

var (
	errAttemptNotFound = errors.New("login attempt not found")
	errAttemptBackend  = errors.New("attempt store backend unavailable")
)

// loginAttempt is the state that must survive between the two login round
// trips. It carries the one resolved identity; the externally supplied
// query value is never used as a second key.
type loginAttempt struct {
	IdentityID    string
	IdentityValue string
	EngineState   []byte
	ExpiresAt     int64
}

type loginAttemptStore struct {
	redis  *redis.Client
	prefix string
}

func newLoginAttemptStore(redisClient *redis.Client, prefix string) *loginAttemptStore {
	return &loginAttemptStore{redis: redisClient, prefix: prefix}
}

func (s *loginAttemptStore) key(attemptKey string) string {
	return s.prefix + ":" + attemptKey
}

func (s *loginAttemptStore) Save(
	ctx context.Context,
	attemptKey string,
	record *loginAttempt,
	ttl time.Duration,
) error {
	encoded, err := encodeLoginAttempt(record)
	if err != nil {
		return err
	}
	if err := s.redis.Set(ctx, s.key(attemptKey), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", errAttemptBackend, err)
	}
	return nil
}

// Take is the single atomic get-and-delete: GETDEL means two concurrent
// finishes for the same key cannot both observe the record. An entry past
// its embedded deadline but not yet swept by redis counts as absent.
func (s *loginAttemptStore) Take(ctx context.Context, attemptKey string) (*loginAttempt, error) {
	data, err := s.redis.GetDel(ctx, s.key(attemptKey)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, errAttemptNotFound
		}
		return nil, fmt.Errorf("%w: %v", errAttemptBackend, err)
	}

	record, err := decodeLoginAttempt(data)
	if err != nil {
		return nil, err
	}
	if time.Now().Unix() > record.ExpiresAt {
		return nil, errAttemptNotFound
	}
	return record, nil
}

func encodeLoginAttempt(record *loginAttempt) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(attemptRecordVersion1)

	if err := binary.Write(&buf, binary.BigEndian, record.ExpiresAt); err != nil {
		return nil, err
	}

	if len(record.IdentityID) > 65535 || len(record.IdentityValue) > 65535 {
		return nil, errors.New("attempt identity length exceeded")
	}
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.IdentityID))); err != nil {
		return nil, err
	}
	buf.WriteString(record.IdentityID)
	if err := binary.Write(&buf, binary.BigEndian, uint16(len(record.IdentityValue))); err != nil {
		return nil, err
	}
	buf.WriteString(record.IdentityValue)

	if err := binary.Write(&buf, binary.BigEndian, uint32(len(record.EngineState))); err != nil {
		return nil, err
	}
	buf.Write(record.EngineState)

	return buf.Bytes(), nil
}

func decodeLoginAttempt(data []byte) (*loginAttempt, error) {
	reader := bytes.NewReader(data)

	version, err := reader.ReadByte()
	if err != nil {
		return nil, err
	}
	if version != attemptRecordVersion1 {
		return nil, errors.New("invalid attempt record version")
	}

	record := &loginAttempt{}
	if err := binary.Read(reader, binary.BigEndian, &record.ExpiresAt); err != nil {
		return nil, err
	}

	var idLen uint16
	if err := binary.Read(reader, binary.BigEndian, &idLen); err != nil {
		return nil, err
	}
	id := make([]byte, idLen)
	if _, err := io.ReadFull(reader, id); err != nil {
		return nil, err
	}
	record.IdentityID = string(id)

	var valueLen uint16
	if err := binary.Read(reader, binary.BigEndian, &valueLen); err != nil {
		return nil, err
	}
	value := make([]byte, valueLen)
	if _, err := io.ReadFull(reader, value); err != nil {
		return nil, err
	}
	record.IdentityValue = string(value)

	var stateLen uint32
	if err := binary.Read(reader, binary.BigEndian, &stateLen); err != nil {
		return nil, err
	}
	state := make([]byte, stateLen)
	if _, err := io.ReadFull(reader, state); err != nil {
		return nil, err
	}
	record.EngineState = state

	return record, nil
}
