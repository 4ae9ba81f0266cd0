package shared

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// SequenceCodes issues human-readable document numbers such as PO000123.
// The counter lives in Redis so allocation has its own atomicity guarantee,
// decoupled from the entity creation transaction. Gaps are acceptable;
// duplicates are not.
type SequenceCodes struct {
	client *redis.Client
	prefix string
}

// NewSequenceCodes constructs the generator. keyPrefix namespaces the
// counters, e.g. "sitechain:seq".
func NewSequenceCodes(client *redis.Client, keyPrefix string) *SequenceCodes {
	if keyPrefix == "" {
		keyPrefix = "sitechain:seq"
	}
	return &SequenceCodes{client: client, prefix: keyPrefix}
}

// Next returns the next code for the document prefix (MRR, PO, RCPT...).
// When Redis is unavailable it falls back to a timestamp-derived code so
// document creation never blocks on the sequence service.
func (s *SequenceCodes) Next(ctx context.Context, docPrefix string) (string, error) {
	if docPrefix == "" {
		return "", fmt.Errorf("sequence: document prefix required")
	}
	if s == nil || s.client == nil {
		return fallbackCode(docPrefix), nil
	}
	n, err := s.client.Incr(ctx, fmt.Sprintf("%s:%s", s.prefix, docPrefix)).Result()
	if err != nil {
		return fallbackCode(docPrefix), nil
	}
	return fmt.Sprintf("%s%06d", docPrefix, n), nil
}

func fallbackCode(docPrefix string) string {
	return fmt.Sprintf("%s-%d", docPrefix, time.Now().UnixNano())
}
