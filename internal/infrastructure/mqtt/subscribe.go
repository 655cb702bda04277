package mqtt

import (
	"fmt"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
)

// IngressHandler receives one event injected over MQTT. room and kind are
// the raw segments of graylogic/actuator/events/{room}/{kind}; a returned
// error is logged as a rejected event.
type IngressHandler func(room, kind string, payload []byte) error

// SubscribeIngress routes every event ingress message to handler. A later
// call replaces the handler. The subscription is restored after reconnects.
//
//	err := client.SubscribeIngress(func(room, kind string, payload []byte) error {
//	    dispatcher.Dispatch(ctx, endpoint(room, kind), string(payload))
//	    return nil
//	})
func (c *Client) SubscribeIngress(handler IngressHandler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil ingress handler", ErrSubscribeFailed)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := Topics{}.AllEventIngress()
	if err := wait(c.paho.Subscribe(topic, c.qos, c.route(handler)), defaultPublishTimeout); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSubscribeFailed, topic, err)
	}

	c.mu.Lock()
	c.ingress = handler
	c.mu.Unlock()
	return nil
}

// route adapts handler to paho. Messages on topics without the ingress shape
// are ignored, and a panicking handler is recovered so paho's router survives.
func (c *Client) route(handler IngressHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		topic := msg.Topic()
		defer func() {
			if r := recover(); r != nil {
				c.logError("MQTT ingress handler panic recovered", "topic", topic, "panic", r)
			}
		}()

		room, kind, ok := ParseEventIngress(topic)
		if !ok {
			c.warn("MQTT ingress topic ignored", "topic", topic)
			return
		}
		if err := handler(room, kind, msg.Payload()); err != nil {
			c.warn("MQTT ingress event rejected", "topic", topic, "error", err)
		}
	}
}
