// Package mqtt provides MQTT client connectivity for the actuator.
//
// This package manages:
//   - Connection to the broker with auto-reconnect
//   - Publishing of actuation results and stream state
//   - Optional event ingress, restored after every reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// MQTT is optional. When disabled the actuator runs on its HTTP event
// streams alone and nothing in this package is used.
//
// # Topics
//
//	graylogic/actuator/status                      retained online/offline
//	graylogic/actuator/stream/{room}/{kind}        retained stream state
//	graylogic/actuator/device/{id}/actuation       actuation results
//	graylogic/actuator/events/{room}/{kind}        event ingress (subscribed)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.PublishStreamState("kitchen", "peopleChanged", state)
package mqtt
