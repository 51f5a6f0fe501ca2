// Package zaber implements stage.Backend for Zaber motion controllers using
// the Zaber ASCII protocol.
//
// Commands are single lines addressed to a device and axis:
//
//	/1 1 move abs 2099738
//
// and every command is answered by a reply line:
//
//	@01 1 OK BUSY -- 0
//
// carrying the reply flag (OK or RJ), the axis status (IDLE or BUSY), the
// highest priority warning flag ("--" for none) and the response data. The
// WR warning means the axis has no reference position, so it is reported as
// not homed.
//
// Devices are reached over a serial port (tarm/serial) or, for Ethernet
// controllers, over TCP with ports of the form "tcp://host:port".
package zaber
