package providers

import (
	"time"

	"github.com/diaspomoney/payments/pkg/retry"
	"github.com/rs/zerolog"
)

func testObserver() Observer {
	return Observer{Logger: zerolog.Nop()}
}

func testGuardConfig() GuardConfig {
	return GuardConfig{
		Timeout:             2 * time.Second,
		Retry:               retry.Config{MaxAttempts: 1},
		BreakerMinRequests:  100,
		BreakerFailureRatio: 0.6,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      time.Minute,
		BreakerHalfOpen:     1,
	}
}
