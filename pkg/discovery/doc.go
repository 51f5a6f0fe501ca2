// Package discovery finds stage controllers reachable from this host.
//
// Two transports are searched:
//
// # Serial
//
// SerialScanner probes the platform's serial port list with a Prober,
// normally the Zaber backend, and reports every device that answers.
// Windows scans COM1 to COM19. Other systems scan /dev/ttyUSB0-9 and
// /dev/ttyACM0-9, skipping nodes that do not exist.
//
// # Networked controllers (_zaber._tcp)
//
// MDNSBrowser browses DNS-SD for Ethernet-attached controllers. Each service
// instance becomes a device on "tcp://<addr>:<port>". TXT records carry the
// device identity:
//
//	id=50081 sn=12345 name=X-LSM100A fw=7.38 type=linear axes=1
//
// Only id is required.
//
// Chain combines discoverers, and First picks the device used for an
// automatic port.
package discovery
