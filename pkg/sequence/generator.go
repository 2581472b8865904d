package sequence

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"time"

	"goalplay-engagement/pkg/config"
	"goalplay-engagement/pkg/rediskey"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
)

var Module = fx.Module("sequence",
	fx.Provide(NewRedisGenerator),
)

// Charset leaves out 0/O and 1/I so codes survive being read aloud.
const (
	Charset    = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	CodeLength = 5
)

type Generator interface {
	NextReferralCode(ctx context.Context) (string, error)
}

// RandomGenerator draws codes from crypto/rand. Uniqueness is left to the
// database index.
type RandomGenerator struct {
	Prefix string
	Length int
}

func NewRandomGenerator(prefix string) *RandomGenerator {
	return &RandomGenerator{Prefix: prefix, Length: CodeLength}
}

func (g *RandomGenerator) NextReferralCode(context.Context) (string, error) {
	n := g.Length
	if n <= 0 {
		n = CodeLength
	}
	s, err := randomAlphaNumeric(n)
	if err != nil {
		return "", err
	}
	return g.Prefix + s, nil
}

// RedisGenerator reserves each candidate for a short while so two instances
// do not hand out the same code before either has committed it.
type RedisGenerator struct {
	rdb     *redis.Client
	random  *RandomGenerator
	reserve time.Duration
}

type Params struct {
	fx.In

	Redis  *redis.Client
	Config *config.Config
}

func NewRedisGenerator(p Params) Generator {
	return &RedisGenerator{
		rdb:     p.Redis,
		random:  NewRandomGenerator(p.Config.Engagement.ReferralCodePrefix),
		reserve: time.Minute,
	}
}

const maxReserveAttempts = 5

func (g *RedisGenerator) NextReferralCode(ctx context.Context) (string, error) {
	for i := 0; i < maxReserveAttempts; i++ {
		code, err := g.random.NextReferralCode(ctx)
		if err != nil {
			return "", err
		}
		ok, err := g.rdb.SetNX(ctx, rediskey.BuildReferralCodeKey(code), 1, g.reserve).Result()
		if err != nil {
			return "", fmt.Errorf("reserve referral code: %w", err)
		}
		if ok {
			return code, nil
		}
	}
	return "", fmt.Errorf("no free referral code after %d attempts", maxReserveAttempts)
}

func randomAlphaNumeric(n int) (string, error) {
	b := make([]byte, n)
	for i := range b {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(Charset))))
		if err != nil {
			return "", err
		}
		b[i] = Charset[num.Int64()]
	}
	return string(b), nil
}
