package app

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/guncon_calibration/internal/config"
	"github.com/relabs-tech/guncon_calibration/internal/telemetry"
)

func RunConsole() error {
	cfg := config.Get()
	if cfg.MQTTBroker == "" {
		return fmt.Errorf("%w: MQTT_BROKER is required for the console", config.ErrInvalidConfiguration)
	}

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to wizard state
	stateToken := client.Subscribe(cfg.TopicState, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var p telemetry.StatePayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: state unmarshal error: %v", err)
			return
		}
		fmt.Println(formatState(p))
	})
	stateToken.Wait()
	if stateToken.Error() != nil {
		return stateToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicState)

	// Subscribe to results for every slot
	resultTopic := strings.TrimSuffix(cfg.TopicResult, "/") + "/+"
	resultToken := client.Subscribe(resultTopic, 1, func(_ mqtt.Client, msg mqtt.Message) {
		var p telemetry.ResultPayload
		if err := json.Unmarshal(msg.Payload(), &p); err != nil {
			log.Printf("console: result unmarshal error: %v", err)
			return
		}
		fmt.Println(formatResult(p))
	})
	resultToken.Wait()
	if resultToken.Error() != nil {
		return resultToken.Error()
	}
	log.Printf("console: subscribed to %s", resultTopic)

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}

func formatState(p telemetry.StatePayload) string {
	line := fmt.Sprintf("[STATE ] gun=%d kind=%-10s state=%-17s target=%d  %s",
		p.Slot+1, p.Kind, p.State, p.Target+1, p.Message)
	if p.Shot != nil {
		line += fmt.Sprintf("  shot=(%d,%d)", p.Shot.X, p.Shot.Y)
	}
	if p.Error != "" {
		line += "  error=" + p.Error
	}
	return line
}

func formatResult(p telemetry.ResultPayload) string {
	r := p.Result
	t := r.Transform
	return fmt.Sprintf(
		"[RESULT] gun=%d pass=%s x=[%d..%d] y=[%d..%d] matrix=(%.4f %.4f %.4f %.4f) bpX=%d/%d bpY=%d/%d",
		p.Slot+1, p.PassID,
		r.RangeX.Min, r.RangeX.Max, r.RangeY.Min, r.RangeY.Max,
		t.XScale, t.XOffset, t.YScale, t.YOffset,
		r.BreakpointX.ScaleLow, r.BreakpointX.ScaleHigh,
		r.BreakpointY.ScaleLow, r.BreakpointY.ScaleHigh,
	)
}
