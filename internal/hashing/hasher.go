package hashing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"strings"
	"time"

	"admin-auth-service/internal/config"
	"admin-auth-service/internal/metrics"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
	ErrUnknownPepper       = errors.New("pepper version not found")
)

// hashContext keeps password hashes from being interchangeable with any
// other argon2 digest made under the same pepper.
const hashContext = "admin-password"

type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

type Pepper struct {
	Value   string
	Version int
}

// Hasher produces and verifies PHC-style argon2id strings:
//
//	$argon2id$v=19$m=65536,t=3,p=2,k=1$<salt>$<hash>
//
// where k is the pepper version mixed into the input. Concurrent
// computations are bounded by a weighted semaphore so a burst of logins
// queues instead of exhausting memory.
type Hasher struct {
	params  Argon2Params
	current Pepper
	peppers map[int]string
	pool    *semaphore.Weighted
	dummy   string
}

// NewHasher builds a hasher from the configured cost parameters. The
// peppers must already be resolved to plaintext.
func NewHasher(cfg *config.Config, current Pepper, previous ...Pepper) (*Hasher, error) {
	params := Argon2Params{
		Memory:      uint32(cfg.Hashing.Argon2MemoryCost),
		Iterations:  uint32(cfg.Hashing.Argon2TimeCost),
		Parallelism: uint8(cfg.Hashing.Argon2Parallelism),
		SaltLength:  16,
		KeyLength:   32,
	}
	return NewHasherWithParams(params, cfg.Hashing.Workers, current, previous...)
}

func NewHasherWithParams(params Argon2Params, workers int, current Pepper, previous ...Pepper) (*Hasher, error) {
	if params.Memory == 0 || params.Iterations == 0 || params.Parallelism == 0 {
		return nil, fmt.Errorf("argon2 parameters must be positive: %+v", params)
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	h := &Hasher{
		params:  params,
		current: current,
		peppers: map[int]string{current.Version: current.Value},
		pool:    semaphore.NewWeighted(int64(workers)),
	}
	for _, p := range previous {
		if p.Value == "" {
			continue
		}
		if _, exists := h.peppers[p.Version]; exists {
			return nil, fmt.Errorf("duplicate pepper version %d", p.Version)
		}
		h.peppers[p.Version] = p.Value
	}

	dummy, err := h.encode(context.Background(), "dummy-password-for-timing")
	if err != nil {
		return nil, fmt.Errorf("failed to prepare dummy hash: %w", err)
	}
	h.dummy = dummy
	return h, nil
}

// Hash returns the encoded argon2id hash of password.
func (h *Hasher) Hash(ctx context.Context, password string) (string, error) {
	return h.encode(ctx, password)
}

func (h *Hasher) encode(ctx context.Context, password string) (string, error) {
	salt := make([]byte, h.params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := h.derive(ctx, password, h.current.Value, salt, h.params, h.params.KeyLength)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d,k=%d$%s$%s",
		argon2.Version,
		h.params.Memory,
		h.params.Iterations,
		h.params.Parallelism,
		h.current.Version,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify reports whether password matches encoded. A malformed hash or an
// unknown pepper version is an error, not a mismatch.
func (h *Hasher) Verify(ctx context.Context, password, encoded string) (bool, error) {
	d, err := decode(encoded)
	if err != nil {
		return false, err
	}
	pepper, ok := h.peppers[d.pepperVersion]
	if !ok {
		return false, fmt.Errorf("%w: %d", ErrUnknownPepper, d.pepperVersion)
	}

	computed, err := h.derive(ctx, password, pepper, d.salt, d.params, uint32(len(d.key)))
	if err != nil {
		return false, err
	}
	return subtle.ConstantTimeCompare(computed, d.key) == 1, nil
}

// VerifyDummy burns the same work as a real verification. Callers use it
// when no account matches so response time does not reveal which emails
// exist.
func (h *Hasher) VerifyDummy(ctx context.Context, password string) error {
	_, err := h.Verify(ctx, password, h.dummy)
	return err
}

// NeedsRehash reports whether encoded was produced with other parameters
// or an older pepper than the hasher currently uses.
func (h *Hasher) NeedsRehash(encoded string) bool {
	d, err := decode(encoded)
	if err != nil {
		return true
	}
	return d.pepperVersion != h.current.Version ||
		d.params.Memory != h.params.Memory ||
		d.params.Iterations != h.params.Iterations ||
		d.params.Parallelism != h.params.Parallelism
}

func (h *Hasher) derive(ctx context.Context, password, pepper string, salt []byte, p Argon2Params, keyLen uint32) ([]byte, error) {
	start := time.Now()
	if err := h.pool.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer h.pool.Release(1)
	defer metrics.ObserveHash(start)

	input := password + pepper + hashContext
	return argon2.IDKey([]byte(input), salt, p.Iterations, p.Memory, p.Parallelism, keyLen), nil
}

type decoded struct {
	params        Argon2Params
	pepperVersion int
	salt          []byte
	key           []byte
}

func decode(encoded string) (*decoded, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return nil, ErrIncompatibleVersion
	}

	d := &decoded{}
	for _, kv := range strings.Split(parts[3], ",") {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			return nil, ErrInvalidHash
		}
		n, err := strconv.ParseUint(value, 10, 32)
		if err != nil {
			return nil, ErrInvalidHash
		}
		switch name {
		case "m":
			d.params.Memory = uint32(n)
		case "t":
			d.params.Iterations = uint32(n)
		case "p":
			if n > 255 {
				return nil, ErrInvalidHash
			}
			d.params.Parallelism = uint8(n)
		case "k":
			d.pepperVersion = int(n)
		default:
			return nil, ErrInvalidHash
		}
	}
	if d.params.Memory == 0 || d.params.Iterations == 0 || d.params.Parallelism == 0 {
		return nil, ErrInvalidHash
	}

	var err error
	if d.salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, ErrInvalidHash
	}
	if d.key, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil || len(d.key) == 0 {
		return nil, ErrInvalidHash
	}
	return d, nil
}
