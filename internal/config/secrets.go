package config

// RedactedConfig returns a shallow copy of cfg with sensitive fields replaced
// by the redaction placeholder "***". Use this when logging or printing the
// active configuration so secrets are never accidentally exposed.
func RedactedConfig(cfg *Config) Config {
	out := *cfg

	out.Kalshi = cfg.Kalshi
	redact(&out.Kalshi.ApiKeyID)

	out.Journal = cfg.Journal
	redact(&out.Journal.DSN)

	out.Notify = cfg.Notify
	redact(&out.Notify.DiscordWebhookURL)

	// Copy slices so callers cannot mutate the original through the redacted
	// copy.
	if cfg.Notify.Events != nil {
		out.Notify.Events = make([]string, len(cfg.Notify.Events))
		copy(out.Notify.Events, cfg.Notify.Events)
	}
	if cfg.Strategy.Spread.TitleKeywords != nil {
		out.Strategy.Spread.TitleKeywords = make([]string, len(cfg.Strategy.Spread.TitleKeywords))
		copy(out.Strategy.Spread.TitleKeywords, cfg.Strategy.Spread.TitleKeywords)
	}
	if cfg.Strategy.CopyTrade.Competitors != nil {
		out.Strategy.CopyTrade.Competitors = make([]string, len(cfg.Strategy.CopyTrade.Competitors))
		copy(out.Strategy.CopyTrade.Competitors, cfg.Strategy.CopyTrade.Competitors)
	}

	return out
}

const redacted = "***"

// redact replaces a non-empty string with the redacted placeholder.
func redact(s *string) {
	if *s != "" {
		*s = redacted
	}
}
