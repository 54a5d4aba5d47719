// Package influxdb records node activity (pairing changes, presence,
// proximity edges, captures) in InfluxDB.
//
// It wraps influxdb-client-go v2 with batched, non-blocking writes. The
// client implements events.Sink, so wiring it is a single Attach on the
// node's event fanout:
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	switch {
//	case errors.Is(err, influxdb.ErrDisabled):
//	    // telemetry off
//	case err != nil:
//	    return err
//	default:
//	    defer client.Close()
//	    fanout.Attach(client)
//	}
//
// Write failures arrive asynchronously through SetOnError.
package influxdb
