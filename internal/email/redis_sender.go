package email

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const mockEmailTTL = 5 * time.Minute

// RedisSender stores messages in Redis so integration tests can read them back.
type RedisSender struct {
	client *redis.Client
	from   string
}

func NewRedisSender(client *redis.Client, from string) Sender {
	return &RedisSender{client: client, from: from}
}

// MockEmailKey is the key a message to recipient rendered from template is stored under.
func MockEmailKey(recipient, template string) string {
	if template == "" {
		template = "unknown"
	}
	return fmt.Sprintf("mockemail:%s:%s", recipient, template)
}

func (s *RedisSender) Send(ctx context.Context, to []string, subject string, rawMessage []byte) error {
	template := HeaderValue(rawMessage, TemplateHeader)
	primaryTo := ""
	if len(to) > 0 {
		primaryTo = to[0]
	}

	data, err := json.Marshal(map[string]string{
		"to":       strings.Join(to, ", "),
		"from":     s.from,
		"subject":  subject,
		"body":     string(rawMessage),
		"sent_at":  time.Now().UTC().Format(time.RFC3339Nano),
		"template": template,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email data: %w", err)
	}

	key := MockEmailKey(primaryTo, template)
	if err := s.client.Set(ctx, key, data, mockEmailTTL).Err(); err != nil {
		return fmt.Errorf("failed to store email in Redis key '%s': %w", key, err)
	}
	log.Debug().Str("key", key).Str("subject", subject).Msg("mock email stored in Redis")
	return nil
}
