// README: NATS mirror publisher for trip event streams.
package broadcast

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/nats-io/nats.go"
)

// NATSPublisher mirrors hub events onto NATS subjects of the form
// buslink.trips.<tripID>.<kind> so external consumers can tap the live feed.
type NATSPublisher struct {
	nc *nats.Conn
}

func NewNATSPublisher(url string) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("buslink-api"),
		nats.DisconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Printf("nats reconnected")
		}),
	)
	if err != nil {
		return nil, err
	}
	return &NATSPublisher{nc: nc}, nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		p.nc.Close()
	}
}

func (p *NATSPublisher) Publish(ev Event) error {
	subject := fmt.Sprintf("buslink.trips.%s.%s", subjectToken(string(ev.TripID)), ev.Kind)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.nc.Publish(subject, b)
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
