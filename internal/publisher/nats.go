// Package publisher forwards player events to NATS so that other processes
// can drive a faked geolocation source from them.
package publisher

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/ezzatron/fake-geolocation-demo/internal/journey"
	"github.com/ezzatron/fake-geolocation-demo/internal/player"
)

type NATSPublisher struct {
	nc          conn
	prefix      string
	logSubjects bool
	log         *zap.Logger
	metrics     PublisherMetrics
}

type PublisherMetrics interface {
	NATSPublishedInc()
	NATSPublishErrInc()
	PublishObserve(d time.Duration)
	NATSSetConnected(connected bool)
}

type conn interface {
	Publish(subject string, data []byte) error
}

type Options struct {
	// Prefix is the first subject token. Defaults to "journey".
	Prefix      string
	LogSubjects bool
	Logger      *zap.Logger
	Metrics     PublisherMetrics
}

func NewNATSPublisher(url string, opts Options) (*NATSPublisher, error) {
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	m := opts.Metrics

	nc, err := nats.Connect(url,
		nats.Name("fake-geolocation-simulator"),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(true)
			}
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			if m != nil {
				m.NATSSetConnected(false)
			}
			log.Info("nats closed")
		}),
	)
	if err != nil {
		return nil, err
	}
	if m != nil {
		m.NATSSetConnected(true)
	}
	return newPublisher(nc, opts), nil
}

func newPublisher(nc conn, opts Options) *NATSPublisher {
	p := &NATSPublisher{
		nc:          nc,
		prefix:      opts.Prefix,
		logSubjects: opts.LogSubjects,
		log:         opts.Logger,
		metrics:     opts.Metrics,
	}
	if p.prefix == "" {
		p.prefix = "journey"
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	return p
}

func (p *NATSPublisher) Close() {
	if nc, ok := p.nc.(*nats.Conn); ok && nc != nil {
		if err := nc.Drain(); err != nil {
			p.log.Warn("nats drain failed", zap.Error(err))
		}
		nc.Close()
	}
}

// PositionMessage is published for every POSITION event.
type PositionMessage struct {
	JourneyID  string              `json:"journeyId"`
	Timestamp  time.Time           `json:"timestamp"`
	OffsetTime float64             `json:"offsetTime"`
	Progress   float64             `json:"progress"`
	Coords     journey.Coordinates `json:"coords"`
}

// StateMessage is published for PLAY and PAUSE events.
type StateMessage struct {
	JourneyID string    `json:"journeyId"`
	Timestamp time.Time `json:"timestamp"`
	State     string    `json:"state"`
}

// Subscriber returns a player subscriber that publishes every event of the
// journey identified by journeyID. Publish failures are logged, never
// returned to the player.
func (p *NATSPublisher) Subscriber(journeyID string, j *journey.Journey) player.Subscriber {
	return func(ev player.Event) {
		if err := p.PublishEvent(journeyID, j, ev); err != nil {
			p.log.Warn("nats publish failed",
				zap.String("journey_id", journeyID),
				zap.String("event", string(ev.Type)),
				zap.Error(err),
			)
		}
	}
}

// PublishEvent publishes ev on <prefix>.<journeyID>.<event type>.
func (p *NATSPublisher) PublishEvent(journeyID string, j *journey.Journey, ev player.Event) error {
	var msg any
	switch ev.Type {
	case player.EventPosition:
		msg = PositionMessage{
			JourneyID:  journeyID,
			Timestamp:  time.UnixMilli(ev.Position.Timestamp).UTC(),
			OffsetTime: ev.OffsetTime,
			Progress:   progress(ev.OffsetTime, j.Duration()),
			Coords:     ev.Position.Coords,
		}
	case player.EventPlay:
		msg = StateMessage{JourneyID: journeyID, Timestamp: time.Now().UTC(), State: "playing"}
	case player.EventPause:
		msg = StateMessage{JourneyID: journeyID, Timestamp: time.Now().UTC(), State: "paused"}
	default:
		return nil
	}
	return p.publish(p.subject(journeyID, ev.Type), msg)
}

func (p *NATSPublisher) publish(subject string, msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if p.logSubjects {
		p.log.Debug("nats publish", zap.String("subject", subject))
	}
	start := time.Now()
	err = p.nc.Publish(subject, b)
	if p.metrics != nil {
		p.metrics.PublishObserve(time.Since(start))
		if err != nil {
			p.metrics.NATSPublishErrInc()
		} else {
			p.metrics.NATSPublishedInc()
		}
	}
	return err
}

func (p *NATSPublisher) subject(journeyID string, t player.EventType) string {
	return subjectToken(p.prefix) + "." + subjectToken(journeyID) + "." + strings.ToLower(string(t))
}

func progress(offset float64, duration int64) float64 {
	if duration <= 0 {
		return 1
	}
	return min(1, max(0, offset/float64(duration)))
}

func subjectToken(s string) string {
	s = strings.TrimSpace(s)
	// NATS token cannot contain spaces, '>', '*', or trailing '.'
	repl := strings.NewReplacer(" ", "_", ".", "_", ">", "_", "*", "_", "/", "_", "\t", "_")
	s = repl.Replace(s)
	if s == "" {
		s = "_"
	}
	return s
}
