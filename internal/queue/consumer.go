package queue

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// StartConsumer connects to RabbitMQ and appends every reservation
// event to logs/reservations.log as a single human-readable line.  It
// runs a reconnect loop with exponential backoff and never returns
// under normal operation; malformed messages are rejected without
// requeue so the stream keeps flowing.
func StartConsumer() {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(brokerURL())
		if err != nil {
			log.Printf("event-consumer: dial failed: %v; retrying in %s", err, backoff)
			time.Sleep(backoff)
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		if err := consumeLoop(conn); err != nil {
			log.Printf("event-consumer: consume loop ended: %v; reconnecting", err)
		}
		_ = conn.Close()
		time.Sleep(2 * time.Second)
	}
}

func consumeLoop(conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(eventsQueueName, true, false, false, false, nil); err != nil {
		return err
	}
	deliveries, err := ch.Consume(eventsQueueName, "", false, false, false, false, nil)
	if err != nil {
		return err
	}
	for d := range deliveries {
		if err := recordEvent(d.Body); err != nil {
			log.Printf("event-consumer: drop message: %v", err)
			_ = d.Reject(false)
			continue
		}
		_ = d.Ack(false)
	}
	return fmt.Errorf("delivery channel closed")
}

// recordEvent appends one formatted line to logs/reservations.log.
func recordEvent(body []byte) error {
	var ev ReservationEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%s %s", ev.OccurredAt, ev.Kind)
	if ev.ReservationID != 0 {
		fmt.Fprintf(&sb, " reservation=%d user=%d play=%d", ev.ReservationID, ev.UserID, ev.PlayID)
	}
	if len(ev.Seats) > 0 {
		fmt.Fprintf(&sb, " seats=%s total_cents=%d", strings.Join(ev.Seats, ","), ev.TotalCents)
	}
	if ev.Kind == KindReservationsExpired {
		fmt.Fprintf(&sb, " count=%d", ev.Count)
	}
	sb.WriteByte('\n')

	if err := os.MkdirAll("logs", 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(filepath.Join("logs", "reservations.log"),
		os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.WriteString(sb.String())
	return err
}
