package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/kirillkom/dataroom-sorter/internal/core/domain"
	"github.com/kirillkom/dataroom-sorter/internal/infrastructure/resilience"
)

var transientNATSErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
	nats.ErrConnectionReconnecting,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	return resilience.ClassifyTransportError(err, func(err error) bool {
		for _, target := range transientNATSErrors {
			if errors.Is(err, target) {
				return true
			}
		}
		return false
	})
}

// wrapTemporaryIfNeeded marks publish failures the broker may recover from.
func wrapTemporaryIfNeeded(err error) error {
	if err == nil || domain.IsKind(err, domain.ErrTemporary) {
		return err
	}
	if classifyNATSError(err).Retryable {
		return domain.WrapError(domain.ErrTemporary, "publish document.classified", err)
	}
	return err
}
