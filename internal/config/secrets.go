package config

// Redacted returns a copy of the config safe for logging: credentials are
// replaced with a fixed marker instead of being printed.
func (c Config) Redacted() Config {
	out := c
	out.Drift.GatewayToken = redact(c.Drift.GatewayToken)
	out.Advisor.ApiKey = redact(c.Advisor.ApiKey)
	out.Postgres.DSN = redact(c.Postgres.DSN)
	out.Postgres.Password = redact(c.Postgres.Password)
	out.Redis.Password = redact(c.Redis.Password)
	out.S3.AccessKey = redact(c.S3.AccessKey)
	out.S3.SecretKey = redact(c.S3.SecretKey)
	out.Notify.TelegramToken = redact(c.Notify.TelegramToken)
	out.Notify.DiscordWebhookURL = redact(c.Notify.DiscordWebhookURL)
	return out
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "[REDACTED]"
}
