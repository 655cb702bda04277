// Package influxdb provides optional InfluxDB telemetry for the actuator.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched writes and health monitoring.
//
// # Measurements
//
//	actuation     tags: device_id, room, op, result   fields: duration_ms, changed
//	stream_state  tags: room, kind, status            fields: retries, connects
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	client.WriteActuation("kitchen-lamp", "kitchen", "power_on", "changed", 42*time.Millisecond)
//
// # Thread Safety
//
// All methods are safe for concurrent use. Writes are non-blocking; async
// write errors are delivered to the SetOnError callback.
package influxdb
