package transport

import "time"

// ReconnectConfig bounds automatic reconnection.
type ReconnectConfig struct {
	MaxRetries    int           // attempts before giving up; zero means unlimited
	RetryDelay    time.Duration // first retry delay
	MaxRetryDelay time.Duration // cap for the exponential delay
}

func DefaultReconnectConfig() ReconnectConfig {
	return ReconnectConfig{
		MaxRetries:    8,
		RetryDelay:    3 * time.Second,
		MaxRetryDelay: 30 * time.Second,
	}
}

// calculateBackoff returns retryDelay * 2^(attempt-1), capped at maxRetryDelay.
func calculateBackoff(attempt int, cfg ReconnectConfig) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := cfg.RetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if cfg.MaxRetryDelay > 0 && delay >= cfg.MaxRetryDelay {
			return cfg.MaxRetryDelay
		}
	}
	if cfg.MaxRetryDelay > 0 && delay > cfg.MaxRetryDelay {
		delay = cfg.MaxRetryDelay
	}
	return delay
}
