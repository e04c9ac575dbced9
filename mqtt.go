package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/KozyOps/ble-tui/cp26"
)

// MqttBridge mirrors the module onto an MQTT broker:
//
//	<prefix>/events  link state changes, JSON
//	<prefix>/rx      inbound passthrough payload, raw bytes
//	<prefix>/tx      subscribed; published bytes are sent as payload
//
// The bridge only relays; mode management stays with the HTTP surface.
type MqttBridge struct {
	Logger *slog.Logger
	Module *cp26.Module

	client mqtt.Client
	prefix string
}

// NewMqttBridge connects to the broker and subscribes the tx topic.
func NewMqttBridge(logger *slog.Logger, module *cp26.Module, config *Config) (*MqttBridge, error) {
	b := &MqttBridge{
		Logger: logger,
		Module: module,
		prefix: config.MqttTopicPrefix,
	}

	opts := mqtt.NewClientOptions().
		AddBroker(config.MqttBroker).
		SetClientID(config.MqttClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(10 * time.Second)
	if config.MqttUser != "" {
		opts.SetUsername(config.MqttUser)
		opts.SetPassword(config.MqttPass)
	}

	b.client = mqtt.NewClient(opts)
	if token := b.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect mqtt broker: %w", token.Error())
	}

	txTopic := b.prefix + "/tx"
	token := b.client.Subscribe(txTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := b.Module.Send(ctx, msg.Payload()); err != nil {
			b.Logger.Error("Failed to send payload from MQTT", "error", err)
		}
	})
	if token.Wait() && token.Error() != nil {
		b.client.Disconnect(250)
		return nil, fmt.Errorf("subscribe %s: %w", txTopic, token.Error())
	}

	return b, nil
}

// Run pumps the module's event and payload feeds to the broker until the
// context is cancelled.
func (b *MqttBridge) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return

		case ev := <-b.Module.Events():
			body, err := json.Marshal(map[string]string{
				"link":      ev.Link.String(),
				"peer_addr": ev.PeerAddr,
				"time":      ev.Time.Format(time.RFC3339),
			})
			if err != nil {
				continue
			}
			b.publish(b.prefix+"/events", body)

		case data := <-b.Module.Payload():
			b.publish(b.prefix+"/rx", data)
		}
	}
}

func (b *MqttBridge) publish(topic string, payload []byte) {
	token := b.client.Publish(topic, 1, false, payload)
	go func() {
		if token.Wait() && token.Error() != nil {
			b.Logger.Error("Failed to publish", "topic", topic, "error", token.Error())
		}
	}()
}

// Close disconnects from the broker.
func (b *MqttBridge) Close() {
	b.client.Disconnect(250)
}
