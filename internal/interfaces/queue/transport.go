package queue

import (
	"crypto/tls"
	"time"

	"github.com/Shopify/sarama"
	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-kafka/v2/pkg/kafka"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"

	"github.com/zapflow/nfse-api/pkg/config"
)

// Transport par publicador/assinante da fila.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber
}

// Close fecha os dois lados.
func (t *Transport) Close() error {
	errPub := t.Publisher.Close()
	if err := t.Subscriber.Close(); err != nil {
		return err
	}
	return errPub
}

// NewTransport usa Kafka quando há brokers configurados; senão, um canal em memória
// (desenvolvimento e testes, sem garantia entre processos).
func NewTransport(cfg config.QueueConfig) (*Transport, error) {
	wmLogger := watermill.NewStdLogger(false, false)

	if !cfg.UsesKafka() {
		ch := NewMemoryChannel()
		return &Transport{Publisher: ch, Subscriber: ch}, nil
	}

	publisher, err := kafka.NewPublisher(
		kafka.PublisherConfig{
			Brokers:               cfg.Brokers,
			Marshaler:             kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaPublisherConfig(cfg),
		},
		wmLogger,
	)
	if err != nil {
		return nil, err
	}

	subscriber, err := kafka.NewSubscriber(
		kafka.SubscriberConfig{
			Brokers:               cfg.Brokers,
			ConsumerGroup:         cfg.ConsumerGroup,
			Unmarshaler:           kafka.DefaultMarshaler{},
			OverwriteSaramaConfig: saramaConfig(cfg),
		},
		wmLogger,
	)
	if err != nil {
		_ = publisher.Close()
		return nil, err
	}

	return &Transport{Publisher: publisher, Subscriber: subscriber}, nil
}

// NewMemoryChannel fila em memória persistente dentro do processo.
func NewMemoryChannel() *gochannel.GoChannel {
	return gochannel.NewGoChannel(
		gochannel.Config{
			Persistent:          true,
			OutputChannelBuffer: 100,
		},
		watermill.NewStdLogger(false, false),
	)
}

func saramaConfig(cfg config.QueueConfig) *sarama.Config {
	sc := sarama.NewConfig()
	sc.Version = sarama.V2_1_0_0
	sc.ClientID = cfg.ClientID

	// consumidor novo começa do início: nenhum job de emissão pode ser perdido
	sc.Consumer.Offsets.Initial = sarama.OffsetOldest
	sc.Consumer.Offsets.AutoCommit.Enable = true
	sc.Consumer.Offsets.AutoCommit.Interval = 5 * time.Second
	sc.Consumer.Offsets.Retry.Max = 3

	if cfg.TLS {
		sc.Net.TLS.Enable = true
		sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	if cfg.SASLMechanism != "" {
		sc.Net.SASL.Enable = true
		sc.Net.TLS.Enable = true
		if sc.Net.TLS.Config == nil {
			sc.Net.TLS.Config = &tls.Config{MinVersion: tls.VersionTLS12}
		}
		sc.Net.SASL.Mechanism = sarama.SASLMechanism(cfg.SASLMechanism)
		sc.Net.SASL.User = cfg.SASLUser
		sc.Net.SASL.Password = cfg.SASLPassword
	}
	return sc
}

// saramaPublisherConfig o publicador síncrono precisa receber as confirmações.
func saramaPublisherConfig(cfg config.QueueConfig) *sarama.Config {
	pc := saramaConfig(cfg)
	pc.Producer.Return.Successes = true
	pc.Producer.RequiredAcks = sarama.WaitForAll
	pc.Producer.Retry.Max = 10
	return pc
}
