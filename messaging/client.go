package messaging

import (
	"context"
	"fmt"
	"log"
	"net"
	"strconv"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/segmentio/kafka-go"

	"fleetkernel/config"
)

type MessageHandler func(topic string, payload []byte)

// Client is the unified messaging client. The backend is chosen by
// MessagingConfig.Backend: "kafka" or "mqtt".
type Client struct {
	mu       sync.RWMutex
	cfg      *config.MessagingConfig
	kafka    *kafkaState
	mqtt     mqtt.Client
	handlers map[string]MessageHandler
}

type kafkaState struct {
	readers map[string]*kafka.Reader
	writer  *kafka.Writer
	// ctx is cancelled on Close to stop the reader goroutines.
	ctx    context.Context
	cancel context.CancelFunc
}

func NewClient(cfg *config.MessagingConfig) *Client {
	return &Client{
		cfg:      cfg,
		handlers: make(map[string]MessageHandler),
	}
}

func (c *Client) Backend() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Backend
}

func (c *Client) Connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.cfg.Backend {
	case "kafka":
		return c.connectKafka()
	case "mqtt":
		return c.connectMQTT()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

func (c *Client) connectKafka() error {
	if len(c.cfg.Kafka.Brokers) == 0 {
		return fmt.Errorf("no kafka brokers configured")
	}

	var conn *kafka.Conn
	var connErr error
	for _, broker := range c.cfg.Kafka.Brokers {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		conn, connErr = kafka.DialContext(ctx, "tcp", broker)
		cancel()
		if connErr == nil {
			log.Printf("messaging: kafka connected to %s", broker)
			break
		}
	}
	if connErr != nil {
		return fmt.Errorf("kafka connect: %w", connErr)
	}

	c.ensureTopics(conn, c.cfg.OrdersTopic, c.cfg.EventsTopic, c.cfg.CommandsTopic, c.cfg.ReportsTopic)
	conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	c.kafka = &kafkaState{
		ctx:     ctx,
		cancel:  cancel,
		readers: make(map[string]*kafka.Reader),
		writer: &kafka.Writer{
			Addr:         kafka.TCP(c.cfg.Kafka.Brokers...),
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
		},
	}
	return nil
}

func (c *Client) connectMQTT() error {
	broker := fmt.Sprintf("tcp://%s:%d", c.cfg.MQTT.Broker, c.cfg.MQTT.Port)
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(c.cfg.MQTT.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetCleanSession(false).
		SetOnConnectHandler(func(client mqtt.Client) {
			log.Printf("messaging: mqtt connected to %s", broker)
			c.resubscribeMQTT(client)
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			log.Printf("messaging: mqtt connection lost: %v", err)
		})

	client := mqtt.NewClient(opts)
	token := client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	c.mqtt = client
	return nil
}

// ensureTopics creates Kafka topics if they don't already exist. Errors are
// logged only; brokers may auto-create topics.
func (c *Client) ensureTopics(conn *kafka.Conn, topics ...string) {
	var wanted []string
	for _, t := range topics {
		if t != "" {
			wanted = append(wanted, t)
		}
	}
	if len(wanted) == 0 {
		return
	}

	controller, err := conn.Controller()
	if err != nil {
		log.Printf("messaging: cannot find controller for topic creation: %v", err)
		return
	}

	controllerAddr := net.JoinHostPort(controller.Host, strconv.Itoa(controller.Port))
	controllerConn, err := kafka.Dial("tcp", controllerAddr)
	if err != nil {
		log.Printf("messaging: cannot connect to controller: %v", err)
		return
	}
	defer controllerConn.Close()

	configs := make([]kafka.TopicConfig, len(wanted))
	for i, t := range wanted {
		configs[i] = kafka.TopicConfig{
			Topic:             t,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(configs...); err != nil {
		log.Printf("messaging: topic auto-create: %v", err)
	} else {
		log.Printf("messaging: ensured topics exist: %v", wanted)
	}
}

func (c *Client) Publish(topic string, payload []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	switch c.cfg.Backend {
	case "kafka":
		if c.kafka == nil || c.kafka.writer == nil {
			return fmt.Errorf("kafka not connected")
		}
		return c.kafka.writer.WriteMessages(context.Background(), kafka.Message{
			Topic: topic,
			Value: payload,
		})
	case "mqtt":
		if c.mqtt == nil || !c.mqtt.IsConnected() {
			return fmt.Errorf("mqtt not connected")
		}
		token := c.mqtt.Publish(topic, 1, false, payload)
		token.Wait()
		return token.Error()
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

// Subscribe registers handler for topic. Registrations survive reconnects
// and Reconfigure.
func (c *Client) Subscribe(topic string, handler MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler

	switch c.cfg.Backend {
	case "kafka":
		if c.kafka == nil {
			return fmt.Errorf("kafka not connected")
		}
		if old, ok := c.kafka.readers[topic]; ok {
			old.Close()
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers: c.cfg.Kafka.Brokers,
			Topic:   topic,
			GroupID: c.cfg.Kafka.GroupID,
		})
		c.kafka.readers[topic] = reader
		go consumeKafka(c.kafka.ctx, reader, handler)
		return nil
	case "mqtt":
		if c.mqtt == nil {
			return fmt.Errorf("mqtt not connected")
		}
		return subscribeMQTT(c.mqtt, topic, handler)
	default:
		return fmt.Errorf("unknown messaging backend: %s", c.cfg.Backend)
	}
}

// consumeKafka feeds reader into handler until ctx is cancelled or the
// reader is closed.
func consumeKafka(ctx context.Context, reader *kafka.Reader, handler MessageHandler) {
	topic := reader.Config().Topic
	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Printf("messaging: kafka reader for %s stopped: %v", topic, err)
			}
			return
		}
		handler(msg.Topic, msg.Value)
	}
}

func subscribeMQTT(client mqtt.Client, topic string, handler MessageHandler) error {
	token := client.Subscribe(topic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}
	return nil
}

// resubscribeMQTT restores registered subscriptions after paho reconnects.
// It runs on paho's goroutine.
func (c *Client) resubscribeMQTT(client mqtt.Client) {
	c.mu.RLock()
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for topic, h := range c.handlers {
		handlers[topic] = h
	}
	c.mu.RUnlock()

	for topic, h := range handlers {
		if err := subscribeMQTT(client, topic, h); err != nil {
			log.Printf("messaging: %v", err)
		}
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	switch c.cfg.Backend {
	case "kafka":
		return c.kafka != nil
	case "mqtt":
		return c.mqtt != nil && c.mqtt.IsConnected()
	default:
		return false
	}
}

// Reconfigure closes the existing connection and reconnects with new config.
// All previously registered subscriptions are restored.
func (c *Client) Reconfigure(cfg *config.MessagingConfig) error {
	c.Close()
	c.mu.Lock()
	c.cfg = cfg
	handlers := make(map[string]MessageHandler, len(c.handlers))
	for k, v := range c.handlers {
		handlers[k] = v
	}
	c.mu.Unlock()

	if err := c.Connect(); err != nil {
		return err
	}

	for topic, handler := range handlers {
		if err := c.Subscribe(topic, handler); err != nil {
			log.Printf("messaging: re-subscribe %s after reconfigure: %v", topic, err)
		}
	}
	return nil
}

func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.kafka != nil {
		c.kafka.cancel()
		for _, r := range c.kafka.readers {
			r.Close()
		}
		if c.kafka.writer != nil {
			c.kafka.writer.Close()
		}
		c.kafka = nil
	}
	if c.mqtt != nil {
		c.mqtt.Disconnect(1000)
		c.mqtt = nil
	}
}
