package main

import (
	"flag"
	"os"
	"strconv"
)

// Config holds the bridge daemon configuration
type Config struct {
	// BindAddress is the address the HTTP server listens on (e.g. "0.0.0.0:8080")
	BindAddress string
	// SerialPort is the path to the module's serial port (e.g. "/dev/ttyUSB0")
	SerialPort string
	// BaudRate is the baud rate for serial communication with the module (e.g. 9600)
	BaudRate int
	// LogLevel sets the logging level (e.g. "debug", "info", "warn", "error")
	LogLevel string
	// MqttBroker enables the MQTT bridge when non-empty (e.g. "tcp://localhost:1883")
	MqttBroker string
	// MqttClientID identifies this daemon to the broker
	MqttClientID string
	// MqttTopicPrefix roots the bridge topics (events, rx, tx)
	MqttTopicPrefix string
	// MqttUser and MqttPass are optional broker credentials
	MqttUser string
	MqttPass string
}

// ConfigOption is a function that modifies a Config
type ConfigOption func(*Config) error

// LoadConfig creates a new config by applying the given options in order
func LoadConfig(opts ...ConfigOption) (*Config, error) {
	config := &Config{}

	for _, opt := range opts {
		if err := opt(config); err != nil {
			return nil, err
		}
	}

	return config, nil
}

// WithDefaults applies default configuration values
func WithDefaults() ConfigOption {
	return func(c *Config) error {
		c.BindAddress = "0.0.0.0:8080"
		c.SerialPort = "/dev/ttyUSB0"
		c.BaudRate = 9600
		c.LogLevel = "info"
		c.MqttClientID = "ble-bridge-1"
		c.MqttTopicPrefix = "ble"
		return nil
	}
}

// WithEnv loads configuration from environment variables
func WithEnv() ConfigOption {
	return func(c *Config) error {
		if addr := os.Getenv("BIND_ADDRESS"); addr != "" {
			c.BindAddress = addr
		}

		if port := os.Getenv("SERIAL_PORT"); port != "" {
			c.SerialPort = port
		}

		if baud := os.Getenv("BAUD_RATE"); baud != "" {
			if b, err := strconv.Atoi(baud); err == nil {
				c.BaudRate = b
			}
		}

		if level := os.Getenv("LOG_LEVEL"); level != "" {
			c.LogLevel = level
		}

		if broker := os.Getenv("MQTT_BROKER"); broker != "" {
			c.MqttBroker = broker
		}
		if id := os.Getenv("MQTT_CLIENT_ID"); id != "" {
			c.MqttClientID = id
		}
		if prefix := os.Getenv("MQTT_TOPIC_PREFIX"); prefix != "" {
			c.MqttTopicPrefix = prefix
		}
		if user := os.Getenv("MQTT_USERNAME"); user != "" {
			c.MqttUser = user
		}
		if pass := os.Getenv("MQTT_PASSWORD"); pass != "" {
			c.MqttPass = pass
		}

		return nil
	}
}

// WithFlags loads configuration from command-line flags
func WithFlags(fSet *flag.FlagSet) ConfigOption {
	return func(c *Config) error {
		fSet.Visit(func(f *flag.Flag) {
			switch f.Name {
			case "bind-address":
				c.BindAddress = f.Value.String()
			case "serial-port":
				c.SerialPort = f.Value.String()
			case "baud-rate":
				if b, err := strconv.Atoi(f.Value.String()); err == nil {
					c.BaudRate = b
				}
			case "log-level":
				c.LogLevel = f.Value.String()
			case "mqtt-broker":
				c.MqttBroker = f.Value.String()
			case "mqtt-client-id":
				c.MqttClientID = f.Value.String()
			case "mqtt-topic-prefix":
				c.MqttTopicPrefix = f.Value.String()
			}
		})
		return nil
	}
}
