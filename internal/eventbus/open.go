package eventbus

import (
	"github.com/rs/zerolog"

	"lanchat/internal/config"
)

// Open returns an Async publisher for every broker configured, or nil if none is.
func Open(cfg config.Config, log zerolog.Logger) (*Async, error) {
	var pubs []Publisher

	if len(cfg.KafkaBrokers) > 0 {
		pubs = append(pubs, NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic))
		log.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka event sink enabled")
	}
	if cfg.NATSURL != "" {
		p, err := NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject)
		if err != nil {
			for _, prev := range pubs {
				prev.Close()
			}
			return nil, err
		}
		pubs = append(pubs, p)
		log.Info().Str("url", cfg.NATSURL).Str("subject", cfg.NATSSubject).Msg("nats event sink enabled")
	}

	if len(pubs) == 0 {
		return nil, nil
	}
	return NewAsync(log, pubs...), nil
}
