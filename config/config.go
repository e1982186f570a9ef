package config

import "time"

type Config struct {
	Service         ServiceConfig `yaml:"service"`
	Log             LogConfig     `yaml:"log"`
	Auth            AuthConfig    `yaml:"auth"`
	Orders          OrdersConfig  `yaml:"orders"`
	Redis           RedisConfig   `yaml:"redis"`
	MQTT            MQTTConfig    `yaml:"mqtt"`
	Tracer          TracerConfig  `yaml:"tracer"`
	SendBuffer      int           `yaml:"sendBuffer" validate:"min=1"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
}

type ServiceConfig struct {
	Name string `yaml:"name" validate:"required"`
	Port string `yaml:"port" validate:"required,numeric"`
}

type LogConfig struct {
	Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// AuthConfig enables token checks when Secret is set.
type AuthConfig struct {
	Secret   string        `yaml:"secret"`
	TokenTTL time.Duration `yaml:"tokenTTL" validate:"gt=0"`
}

type OrdersConfig struct {
	Driver string `yaml:"driver" validate:"oneof=none postgres sqlite"`
	DSN    string `yaml:"dsn" validate:"required_unless=Driver none"`
}

type RedisConfig struct {
	URL string `yaml:"url" validate:"omitempty,url"`
}

type MQTTConfig struct {
	Broker   string `yaml:"broker"`
	Topic    string `yaml:"topic" validate:"required"`
	ClientID string `yaml:"clientId"`
}

type TracerConfig struct {
	Endpoint string `yaml:"endpoint"`
}
