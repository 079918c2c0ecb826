// Package hsmsss implements HSMS-SS (High-Speed SECS Message Services, Single Session, SEMI E37.1)
// over TCP.
//
// A Connection runs the NotConnected / Connected / Selected state machine on a single event
// loop. The active role dials the remote, selects the session right away, keeps it alive with a
// periodic Linktest and reconnects after T5 whenever the transport is lost. The passive role
// listens, answers Select.req and holds a second incoming connection until the first one leaves
// or fails to select.
//
// Usage Example:
//
//	cfg, err := hsmsss.NewConnectionConfig("127.0.0.1", 5000,
//	    hsmsss.WithActive(),
//	    hsmsss.WithHostRole(),
//	    hsmsss.WithT3Timeout(30*time.Second),
//	)
//	// ... handle error ...
//
//	conn, err := hsmsss.NewConnection(ctx, cfg)
//	// ... handle error ...
//	defer conn.Close()
//
//	session := conn.Session()
//	session.AddDataMessageHandler(func(msg *hsms.DataMessage, s hsms.Session) {
//	    _ = s.ReplyDataMessage(ctx, msg, msg.Item())
//	})
//
//	// open and wait until selected
//	err = conn.Open(ctx, true)
//	// ... handle error ...
//
//	reply, err := session.SendDataMessage(ctx, 1, 1, true, nil)
//	// ... handle error and process reply ...
package hsmsss
