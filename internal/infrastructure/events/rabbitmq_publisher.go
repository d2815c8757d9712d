// Package events publica los cambios de estado fiscal de las notas en RabbitMQ.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"

	"github.com/jhoicas/nfse-emissor/internal/application/billing"
)

// DefaultExchange exchange topic donde se publican los eventos nfse.*.
const DefaultExchange = "nfse_events"

var (
	_ billing.EventPublisher = (*RabbitMQPublisher)(nil)
	_ billing.EventPublisher = (*NoopPublisher)(nil)
)

// RabbitMQPublisher publica cada StatusEvent como JSON con routing key = evt.Type.
type RabbitMQPublisher struct {
	mu       sync.Mutex
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	exchange string
	log      zerolog.Logger
}

// NewRabbitMQPublisher conecta al broker y declara el exchange (topic, durable).
func NewRabbitMQPublisher(amqpURL, exchange string, log zerolog.Logger) (*RabbitMQPublisher, error) {
	cleanURL, err := sanitizeAMQPURL(amqpURL)
	if err != nil {
		return nil, err
	}
	if exchange == "" {
		exchange = DefaultExchange
	}

	conn, err := amqp091.DialConfig(cleanURL, amqp091.Config{Dial: amqp091.DefaultDial(10 * time.Second)})
	if err != nil {
		return nil, fmt.Errorf("amqp: conectar: %w", err)
	}
	p := &RabbitMQPublisher{conn: conn, exchange: exchange, log: log}
	if err := p.openChannel(); err != nil {
		conn.Close()
		return nil, err
	}
	return p, nil
}

func (p *RabbitMQPublisher) openChannel() error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("amqp: abrir canal: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		return fmt.Errorf("amqp: declarar exchange %s: %w", p.exchange, err)
	}
	p.channel = ch
	return nil
}

// Publish envía el evento. Si el canal se cerró se reabre una vez y se reintenta.
func (p *RabbitMQPublisher) Publish(ctx context.Context, evt billing.StatusEvent) error {
	body, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("amqp: serializar evento: %w", err)
	}
	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    evt.InvoiceID + ":" + evt.Status,
		Timestamp:    evt.OccurredAt,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	err = p.channel.PublishWithContext(ctx, p.exchange, evt.Type, false, false, msg)
	if err == nil {
		return nil
	}
	p.log.Warn().Err(err).Str("component", "rabbitmq_publisher").Str("routing_key", evt.Type).
		Msg("publish falló; reabriendo canal")
	if reopenErr := p.openChannel(); reopenErr != nil {
		return errors.Join(err, reopenErr)
	}
	return p.channel.PublishWithContext(ctx, p.exchange, evt.Type, false, false, msg)
}

// Close cierra canal y conexión.
func (p *RabbitMQPublisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		p.conn.Close()
	}
}

// NoopPublisher se usa cuando AMQP no está configurado o el broker no responde al arrancar.
type NoopPublisher struct {
	log zerolog.Logger
}

// NewNoopPublisher crea el publicador vacío.
func NewNoopPublisher(log zerolog.Logger) *NoopPublisher {
	return &NoopPublisher{log: log}
}

// Publish solo deja constancia en el log.
func (p *NoopPublisher) Publish(_ context.Context, evt billing.StatusEvent) error {
	p.log.Debug().Str("component", "rabbitmq_publisher").Str("mode", "fallback").
		Str("routing_key", evt.Type).Str("invoice_id", evt.InvoiceID).Msg("publish omitido")
	return nil
}

func sanitizeAMQPURL(raw string) (string, error) {
	clean := strings.Trim(strings.TrimSpace(raw), "\"'")
	if idx := strings.Index(strings.ToLower(clean), "amqp"); idx > 0 {
		clean = clean[idx:]
	}
	u, err := url.Parse(clean)
	if err != nil {
		return "", fmt.Errorf("amqp: URL inválida: %w", err)
	}
	if u.Scheme != "amqp" && u.Scheme != "amqps" {
		return "", errors.New("amqp: el esquema debe ser amqp:// o amqps://")
	}
	return clean, nil
}
