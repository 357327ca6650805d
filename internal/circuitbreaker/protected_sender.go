package circuitbreaker

import (
	"context"

	"go.uber.org/zap"
)

// MessageSender matches the send operation the reminder service performs.
type MessageSender interface {
	SendMessage(ctx context.Context, to, body string) (string, error)
}

// ProtectedSender wraps a MessageSender with a circuit breaker. While the
// circuit is open every send fails fast with ErrCircuitOpen.
type ProtectedSender struct {
	sender  MessageSender
	breaker *CircuitBreaker
	logger  *zap.Logger
}

// NewProtectedSender wraps sender with the given breaker config.
func NewProtectedSender(sender MessageSender, config Config, logger *zap.Logger) *ProtectedSender {
	return &ProtectedSender{
		sender:  sender,
		breaker: New(config, logger),
		logger:  logger,
	}
}

// SendMessage forwards to the underlying sender when the breaker allows it.
func (p *ProtectedSender) SendMessage(ctx context.Context, to, body string) (string, error) {
	if !p.breaker.Allow() {
		p.logger.Warn("send rejected by circuit breaker",
			zap.String("breaker", p.breaker.config.Name),
		)
		return "", ErrCircuitOpen
	}

	messageID, err := p.sender.SendMessage(ctx, to, body)
	if err != nil {
		p.breaker.RecordFailure()
		return "", err
	}

	p.breaker.RecordSuccess()
	return messageID, nil
}

// State exposes the breaker state for health reporting.
func (p *ProtectedSender) State() State {
	return p.breaker.GetState()
}
