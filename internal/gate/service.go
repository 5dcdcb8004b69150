package gate

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/majordomo-home/majordomo/internal/bus"
)

// Subjects is the gate's bus surface.
type Subjects struct {
	Results           string `yaml:"results"`
	Verified          string `yaml:"verified"`
	Rejected          string `yaml:"rejected"`
	ConversationEnded string `yaml:"conversation_ended"`
	PublishRecognized string `yaml:"publish_recognized"`
	PublishUnknown    string `yaml:"publish_unknown"`
}

// DefaultSubjects returns the wire-contract subject names.
func DefaultSubjects() Subjects {
	return Subjects{
		Results:           "diarization.result",
		Verified:          "speaker.verified",
		Rejected:          "speaker.rejected",
		ConversationEnded: "conversation.ended",
		PublishRecognized: "speech.diarized.%s",
		PublishUnknown:    "speech.diarized.unknown",
	}
}

// BusPublisher publishes results to speech.diarized.<speaker_id> for
// recognized speakers and to the unknown subject otherwise.
func BusPublisher(conn bus.Conn, subjects Subjects) Publisher {
	return func(res Result) error {
		subject := subjects.PublishUnknown
		if res.Recognized {
			subject = fmt.Sprintf(subjects.PublishRecognized, res.SpeakerID)
		}
		data, err := json.Marshal(res)
		if err != nil {
			return fmt.Errorf("encode result: %w", err)
		}
		return conn.Publish(subject, data)
	}
}

type controlSignal struct {
	ConversationID string `json:"conversation_id"`
}

// AttachBus subscribes the gate to its inbound result stream and the three
// control signals. Call the returned stop function to unsubscribe.
func AttachBus(conn bus.Conn, g *Gate, subjects Subjects, log *slog.Logger) (stop func(), err error) {
	var subs []bus.Subscription
	cleanup := func() {
		for _, s := range subs {
			_ = s.Unsubscribe()
		}
	}

	subscribe := func(subject string, h bus.Handler) error {
		sub, err := conn.Subscribe(subject, h)
		if err != nil {
			return fmt.Errorf("gate: subscribe %s: %w", subject, err)
		}
		subs = append(subs, sub)
		return nil
	}

	control := func(apply func(string)) bus.Handler {
		return func(msg bus.Msg) {
			var sig controlSignal
			if err := json.Unmarshal(msg.Data, &sig); err != nil {
				log.Warn("malformed control signal dropped", "subject", msg.Subject, "err", err)
				return
			}
			apply(sig.ConversationID)
		}
	}

	if err := subscribe(subjects.Results, func(msg bus.Msg) {
		var res Result
		if err := json.Unmarshal(msg.Data, &res); err != nil {
			log.Warn("malformed diarization result dropped", "err", err)
			return
		}
		g.Offer(res)
	}); err != nil {
		cleanup()
		return nil, err
	}
	if err := subscribe(subjects.Verified, control(g.Verified)); err != nil {
		cleanup()
		return nil, err
	}
	if err := subscribe(subjects.Rejected, control(g.Rejected)); err != nil {
		cleanup()
		return nil, err
	}
	if err := subscribe(subjects.ConversationEnded, control(g.ConversationEnded)); err != nil {
		cleanup()
		return nil, err
	}

	log.Info("gate attached to bus",
		"results", subjects.Results,
		"verified", subjects.Verified,
		"rejected", subjects.Rejected,
		"ended", subjects.ConversationEnded)
	return cleanup, nil
}
