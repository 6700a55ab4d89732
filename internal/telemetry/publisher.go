// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

// Package telemetry publishes calibration progress and results over MQTT
// so a monitor can follow the run from another machine.
package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/guncon_calibration/internal/wizard"
)

const publishTimeout = 2 * time.Second

// Client is the part of the MQTT client the publisher needs.
type Client interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// ResultTopic returns the per-slot result topic below base.
func ResultTopic(base string, slot int) string {
	return strings.TrimSuffix(base, "/") + "/" + strconv.Itoa(slot)
}

// SlotFromTopic extracts the slot number from a result topic.
func SlotFromTopic(topic string) (int, error) {
	i := strings.LastIndex(topic, "/")
	slot, err := strconv.Atoi(topic[i+1:])
	if err != nil {
		return 0, fmt.Errorf("invalid result topic %q: %w", topic, err)
	}
	return slot, nil
}

// Publisher reports wizard events to the state topic and applied results,
// retained, to the per-slot result topic.
type Publisher struct {
	client      Client
	conn        mqtt.Client
	stateTopic  string
	resultTopic string
	logger      *log.Logger
	now         func() time.Time
}

// Connect opens an MQTT connection and returns a publisher on it.
func Connect(broker, clientID, stateTopic, resultTopic string, logger *log.Logger) (*Publisher, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetConnectTimeout(5 * time.Second).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connect to MQTT broker %s: %w", broker, token.Error())
	}
	logger.Printf("telemetry: connected to MQTT broker at %s", broker)

	p := NewPublisher(client, stateTopic, resultTopic, logger)
	p.conn = client
	return p, nil
}

func NewPublisher(client Client, stateTopic, resultTopic string, logger *log.Logger) *Publisher {
	return &Publisher{
		client:      client,
		stateTopic:  stateTopic,
		resultTopic: resultTopic,
		logger:      logger,
		now:         time.Now,
	}
}

// Report publishes ev. Failures are logged and otherwise ignored.
func (p *Publisher) Report(ev wizard.Event) {
	payload, err := json.Marshal(NewStatePayload(ev))
	if err != nil {
		p.logger.Printf("telemetry: marshal state: %v", err)
		return
	}
	if err := p.publish(p.stateTopic, 0, false, payload); err != nil {
		p.logger.Printf("telemetry: MQTT publish error (state): %v", err)
	}
}

// Apply publishes the calibration result for the pass.
func (p *Publisher) Apply(_ context.Context, params wizard.Params) error {
	payload, err := json.Marshal(NewResultPayload(params, p.now()))
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	topic := ResultTopic(p.resultTopic, params.Slot)
	if err := p.publish(topic, 1, true, payload); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

func (p *Publisher) publish(topic string, qos byte, retained bool, payload []byte) error {
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("timed out after %s", publishTimeout)
	}
	return token.Error()
}

func (p *Publisher) Close() {
	if p.conn != nil {
		p.conn.Disconnect(250)
	}
}
