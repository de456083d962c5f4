// Robin - Supervised Adaptive Round Monitoring
// Copyright 2026 UVuruna
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/UVuruna/Robin

package eventprocessor

import (
	"time"

	"github.com/UVuruna/Robin-sub000/internal/config"
)

// PublisherConfig holds publisher configuration.
type PublisherConfig struct {
	URL             string
	SubjectPrefix   string
	PublishTimeout  time.Duration
	MaxReconnects   int
	ReconnectWait   time.Duration
	ReconnectBuffer int
	CircuitBreaker  CircuitBreakerConfig
}

// DefaultPublisherConfig returns production defaults for a publisher.
func DefaultPublisherConfig(url, prefix string) PublisherConfig {
	return PublisherConfig{
		URL:             url,
		SubjectPrefix:   prefix,
		PublishTimeout:  2 * time.Second,
		MaxReconnects:   -1, // Unlimited
		ReconnectWait:   2 * time.Second,
		ReconnectBuffer: 1024 * 1024,
		CircuitBreaker:  DefaultCircuitBreakerConfig("nats-publish"),
	}
}

// PublisherConfigFrom derives a publisher configuration from the NATS section.
func PublisherConfigFrom(cfg config.NATSConfig) PublisherConfig {
	pc := DefaultPublisherConfig(cfg.URL, cfg.SubjectPrefix)
	if cfg.PublishTimeout > 0 {
		pc.PublishTimeout = cfg.PublishTimeout
	}
	return pc
}

// SubscriberConfig holds subscriber configuration.
type SubscriberConfig struct {
	URL            string
	QueueGroup     string
	MaxReconnects  int
	ReconnectWait  time.Duration
	AckWaitTimeout time.Duration
	CloseTimeout   time.Duration
}

// DefaultSubscriberConfig returns defaults for a subscriber.
func DefaultSubscriberConfig(url string) SubscriberConfig {
	return SubscriberConfig{
		URL:            url,
		MaxReconnects:  -1,
		ReconnectWait:  2 * time.Second,
		AckWaitTimeout: 30 * time.Second,
		CloseTimeout:   10 * time.Second,
	}
}

// ServerConfig holds embedded NATS server configuration.
type ServerConfig struct {
	Host string
	// Port -1 picks a random free port.
	Port int
}

// ServerConfigFrom derives the embedded server configuration.
func ServerConfigFrom(cfg config.NATSConfig) ServerConfig {
	return ServerConfig{Host: cfg.Host, Port: cfg.Port}
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// DefaultCircuitBreakerConfig returns production defaults for a circuit breaker.
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      3,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}
