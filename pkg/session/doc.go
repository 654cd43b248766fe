// Package session keeps BLE sessions with Polar devices alive.
//
// A Manager owns one session per device id. Each session runs a single worker
// goroutine that serializes its state transitions and callbacks, so a
// Callback sees connecting, connected and disconnected for one device in
// order and never concurrently. Sessions reconnect after link loss according
// to a ReconnectPolicy and pause while the Bluetooth adapter is powered off.
//
// After a link comes up the session negotiates every advertised feature
// independently: heart rate, battery, device information, PMD streaming and
// PSFTP file transfer. Payloads arriving for a feature that is not ready, or
// from a link that has already been replaced, are dropped and counted in Stats.
//
//	mgr, err := session.NewManager(session.Options{
//	    Transport: transport,
//	    Callback:  myCallback,
//	})
//	if err != nil {
//	    return err
//	}
//	defer mgr.Close(context.Background())
//	_ = mgr.Connect("A0:9E:1A:12:34:56")
package session
