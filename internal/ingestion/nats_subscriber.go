package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog"
)

// NATSSubscriber subscribes to NATS JetStream subjects and feeds events
// into the deterministic core via the eventChan. Each subject maps to a
// single event type so consumers scale independently.
type NATSSubscriber struct {
	js        jetstream.JetStream
	eventChan chan<- RawEvent
	consumers []jetstream.ConsumeContext
	log       zerolog.Logger
}

// RawEvent is the parsed-but-untyped event from NATS, ready for the shell
// to validate and convert into a typed event.Event before sending to the core.
type RawEvent struct {
	Subject   string
	Data      []byte
	Timestamp time.Time
	AckFunc   func() // Call to ACK the NATS message after successful processing
	NakFunc   func() // Call to NAK on failure (will be redelivered)
}

// SubjectConfig maps NATS subjects to event types.
type SubjectConfig struct {
	Subject      string
	EventType    string
	ConsumerName string
	StreamName   string
}

// DefaultSubjects returns the standard subject configuration.
func DefaultSubjects() []SubjectConfig {
	return []SubjectConfig{
		{Subject: "vault.deposits.>", EventType: "DepositReceived", ConsumerName: "vault-deposits", StreamName: "VAULT_DEPOSITS"},
		{Subject: "vault.withdrawals.requested.>", EventType: "WithdrawRequested", ConsumerName: "vault-wd-request", StreamName: "VAULT_WITHDRAWALS"},
		{Subject: "vault.withdrawals.fulfill.>", EventType: "WithdrawFulfill", ConsumerName: "vault-wd-fulfill", StreamName: "VAULT_WITHDRAWALS"},
		{Subject: "vault.withdrawals.batch.>", EventType: "WithdrawBatchFulfill", ConsumerName: "vault-wd-batch", StreamName: "VAULT_WITHDRAWALS"},
		{Subject: "vault.withdrawals.emergency.>", EventType: "EmergencyWithdrawal", ConsumerName: "vault-wd-emergency", StreamName: "VAULT_WITHDRAWALS"},
		{Subject: "vault.pnl.loss.>", EventType: "LossRecorded", ConsumerName: "vault-pnl-loss", StreamName: "VAULT_PNL"},
		{Subject: "vault.pnl.profit.>", EventType: "ProfitRecorded", ConsumerName: "vault-pnl-profit", StreamName: "VAULT_PNL"},
		{Subject: "vault.purchases.commit.>", EventType: "PurchaseCommitted", ConsumerName: "vault-purchase-commit", StreamName: "VAULT_PURCHASES"},
		{Subject: "vault.purchases.reveal.>", EventType: "PurchaseRevealed", ConsumerName: "vault-purchase-reveal", StreamName: "VAULT_PURCHASES"},
		{Subject: "vault.purchases.cancel.>", EventType: "PurchaseCancelled", ConsumerName: "vault-purchase-cancel", StreamName: "VAULT_PURCHASES"},
		{Subject: "vault.prices.>", EventType: "OraclePriceUpdate", ConsumerName: "vault-prices", StreamName: "VAULT_PRICES"},
		{Subject: "vault.epochs.tick", EventType: "PremiumEpochTick", ConsumerName: "vault-epochs", StreamName: "VAULT_EPOCHS"},
		{Subject: "vault.coverage.requested.>", EventType: "CoverageRequested", ConsumerName: "vault-cov-request", StreamName: "VAULT_COVERAGE"},
		{Subject: "vault.coverage.approved.>", EventType: "CoverageApproved", ConsumerName: "vault-cov-approve", StreamName: "VAULT_COVERAGE"},
		{Subject: "vault.coverage.injected.>", EventType: "CoverageInjected", ConsumerName: "vault-cov-inject", StreamName: "VAULT_COVERAGE"},
		{Subject: "vault.admin.shutdown", EventType: "ShutdownInitiated", ConsumerName: "vault-shutdown", StreamName: "VAULT_ADMIN"},
	}
}

func NewNATSSubscriber(js jetstream.JetStream, eventChan chan<- RawEvent, log zerolog.Logger) *NATSSubscriber {
	return &NATSSubscriber{
		js:        js,
		eventChan: eventChan,
		log:       log,
	}
}

// Subscribe creates JetStream consumers for all configured subjects.
// Consumers use explicit ACK, max_deliver=5, ack_wait=30s.
func (ns *NATSSubscriber) Subscribe(ctx context.Context, subjects []SubjectConfig) error {
	for _, cfg := range subjects {
		consumer, err := ns.js.CreateOrUpdateConsumer(ctx, cfg.StreamName, jetstream.ConsumerConfig{
			Durable:       cfg.ConsumerName,
			FilterSubject: cfg.Subject,
			AckPolicy:     jetstream.AckExplicitPolicy,
			AckWait:       30 * time.Second,
			MaxDeliver:    5,
			DeliverPolicy: jetstream.DeliverAllPolicy,
		})
		if err != nil {
			return fmt.Errorf("create consumer %s: %w", cfg.ConsumerName, err)
		}

		consumerContext, err := consumer.Consume(func(msg jetstream.Msg) {
			raw := RawEvent{
				Subject:   msg.Subject(),
				Data:      msg.Data(),
				Timestamp: time.Now(),
				AckFunc:   func() { msg.Ack() },
				NakFunc:   func() { msg.Nak() },
			}

			select {
			case ns.eventChan <- raw:
				// Queued for processing
			case <-ctx.Done():
				msg.Nak()
			}
		})
		if err != nil {
			return fmt.Errorf("consume %s: %w", cfg.ConsumerName, err)
		}

		ns.consumers = append(ns.consumers, consumerContext)
		ns.log.Info().Str("subject", cfg.Subject).Str("consumer", cfg.ConsumerName).Msg("subscribed")
	}

	return nil
}

// EnsureStreams creates the required JetStream streams if they don't exist.
// Streams use FileStorage, retention=Limits, max_age=72h.
func EnsureStreams(ctx context.Context, js jetstream.JetStream, log zerolog.Logger) error {
	streamSubjects := []struct {
		name    string
		subject string
	}{
		{"VAULT_DEPOSITS", "vault.deposits.>"},
		{"VAULT_WITHDRAWALS", "vault.withdrawals.>"},
		{"VAULT_PNL", "vault.pnl.>"},
		{"VAULT_PURCHASES", "vault.purchases.>"},
		{"VAULT_PRICES", "vault.prices.>"},
		{"VAULT_EPOCHS", "vault.epochs.>"},
		{"VAULT_COVERAGE", "vault.coverage.>"},
		{"VAULT_ADMIN", "vault.admin.>"},
	}

	for _, s := range streamSubjects {
		cfg := jetstream.StreamConfig{
			Name:      s.name,
			Subjects:  []string{s.subject},
			Storage:   jetstream.FileStorage,
			Retention: jetstream.LimitsPolicy,
			MaxAge:    72 * time.Hour,
			Replicas:  1,
		}
		if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
			return fmt.Errorf("create stream %s: %w", s.name, err)
		}
		log.Info().Str("stream", s.name).Msg("ensured stream")
	}

	return nil
}

// Stop gracefully stops all consumers.
func (ns *NATSSubscriber) Stop() {
	for _, cc := range ns.consumers {
		cc.Stop()
	}
	ns.log.Info().Msg("NATS subscribers stopped")
}

// ConnectNATS establishes a NATS connection and returns a JetStream context.
func ConnectNATS(url string, log zerolog.Logger) (*nats.Conn, jetstream.JetStream, error) {
	nc, err := nats.Connect(url,
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			log.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, fmt.Errorf("jetstream: %w", err)
	}

	return nc, js, nil
}
