package email

import (
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/adamwilson22/Velaa-Backend/internal/config"
)

// NewFromConfig builds the sender used by the worker: Redis when services are
// mocked, SMTP otherwise, plus a file copy when LOG_EMAILS is set.
func NewFromConfig(cfg *config.Config, rdb *redis.Client) Sender {
	var primary Sender
	if cfg.MockServices && rdb != nil {
		log.Info().Msg("MOCK_SERVICES enabled, storing emails in Redis")
		primary = NewRedisSender(rdb, cfg.SmtpFromAddress)
	} else {
		primary = NewSMTPSender(cfg)
	}

	composite := NewCompositeEmailSender(primary)
	if cfg.LogEmails != "" {
		fileSender, err := NewFileEmailSender(cfg.LogEmails)
		if err != nil {
			log.Warn().Err(err).Str("path", cfg.LogEmails).Msg("proceeding without file email logging")
		} else {
			composite.AddSender(fileSender)
		}
	}
	return composite
}
