package nats

import (
	"context"
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/kt-search/internal/core/domain"
	"github.com/kirillkom/kt-search/internal/infrastructure/resilience"
)

// transportErrors clear up once the client reconnects.
var transportErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrConnectionReconnecting,
	nats.ErrDisconnected,
	nats.ErrReconnectBufExceeded,
	nats.ErrNoResponders,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, errors.Is(err, context.Canceled):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err), isTransportError(err):
		return resilience.ErrorClassification{Retryable: true, RecordFailure: true}
	default:
		return resilience.ErrorClassification{RecordFailure: true}
	}
}

func isTransportError(err error) bool {
	for _, target := range transportErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// wrapPublishError marks transport failures temporary. Anything else means
// the broker rejected the message.
func wrapPublishError(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish search job", err)
	}
	return domain.WrapError(domain.ErrProviderUnavailable, "publish search job", err)
}
