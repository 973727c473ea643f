// Package services contains stateless domain services shared across flows
package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/shrtyhq/shrty/config"
	"github.com/shrtyhq/shrty/repository"

	hashids "github.com/speps/go-hashids/v2"
)

// maxCodeSeed bounds the random seed fed into the encoder.
const maxCodeSeed = 10_000_000

// maxAllocateAttempts bounds the collision retry loop.
const maxAllocateAttempts = 32

// ShortCodeAllocator produces short codes that are unique among primary links.
type ShortCodeAllocator interface {
	Allocate(ctx context.Context) (string, error)
	Encode(seed int) (string, error)
}

type shortCodeAllocator struct {
	encoder   *hashids.HashID
	shortURLs repository.ShortURLRepository
}

// NewShortCodeAllocator builds an allocator from the configured salt,
// minimum length and alphabet. The salt must stay stable across deploys
// or previously issued codes can collide with new ones.
func NewShortCodeAllocator(cfg config.SecurityConfig, shortURLs repository.ShortURLRepository) (ShortCodeAllocator, error) {
	data := hashids.NewData()
	data.Salt = cfg.ShortCodeSalt
	data.MinLength = cfg.ShortCodeLength
	data.Alphabet = cfg.ShortCodeAlphabet

	encoder, err := hashids.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to build short code encoder: %w", err)
	}

	return &shortCodeAllocator{
		encoder:   encoder,
		shortURLs: shortURLs,
	}, nil
}

// Allocate draws random seeds and encodes them until a code with no live
// primary link comes up.
func (a *shortCodeAllocator) Allocate(ctx context.Context) (string, error) {
	for attempt := 0; attempt < maxAllocateAttempts; attempt++ {
		seed, err := rand.Int(rand.Reader, big.NewInt(maxCodeSeed))
		if err != nil {
			return "", fmt.Errorf("failed to draw short code seed: %w", err)
		}

		code, err := a.Encode(int(seed.Int64()))
		if err != nil {
			return "", err
		}

		existing, err := a.shortURLs.PrimaryByCode(ctx, code)
		if err != nil {
			return "", fmt.Errorf("failed to check short code availability: %w", err)
		}
		if existing == nil {
			return code, nil
		}
	}

	return "", fmt.Errorf("failed to allocate a free short code after %d attempts", maxAllocateAttempts)
}

// Encode maps a seed to its short code. Deterministic for a given salt,
// length and alphabet.
func (a *shortCodeAllocator) Encode(seed int) (string, error) {
	code, err := a.encoder.Encode([]int{seed})
	if err != nil {
		return "", fmt.Errorf("failed to encode short code: %w", err)
	}
	return code, nil
}
