// Package secs1 implements the SECS-I block-transfer protocol (SEMI E4) with a TCP stream in
// place of the serial line.
//
// Messages are cut into blocks of at most 244 body bytes behind a 10-byte header. A sender
// asks for the line with ENQ, waits for EOT, then sends every block of the message and waits
// for an ACK after each one. A NAK or a missing ACK within T2 resends the block, up to the
// retry count. When both ends send ENQ at once the master keeps the line and the slave
// receives first; the equipment is master unless configured otherwise.
//
// Timers:
//
//   - T1, inter-character: the longest gap between bytes of a block
//   - T2, protocol: the longest wait for EOT after ENQ and for ACK after a block
//   - T3, reply: the longest wait for the reply to a primary message
//   - T4, inter-block: the longest gap between blocks of one message
//
// A Connection implements hsms.Connection, so applications switch between HSMS-SS and SECS-I
// by changing only the configuration.
//
// Usage Example:
//
//	cfg, err := secs1.NewConnectionConfig("127.0.0.1", 5000,
//	    secs1.WithActive(),
//	    secs1.WithHostRole(),
//	    secs1.WithDeviceID(1),
//	)
//	// ... handle error ...
//
//	conn, err := secs1.NewConnection(ctx, cfg)
//	// ... handle error ...
//	defer conn.Close()
//
//	err = conn.Open(ctx, true)
//	// ... handle error ...
//
//	reply, err := conn.Session().SendDataMessage(ctx, 1, 1, true, nil)
//	// ... handle error and process reply ...
package secs1
