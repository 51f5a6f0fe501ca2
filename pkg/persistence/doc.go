// Package persistence stores stage configuration and discovered device lists.
//
// Files are JSON unless the path ends in .yaml or .yml. The configuration
// file keeps the field layout used by existing installations:
//
//	{
//	  "port": "COM3",
//	  "position_limits_mm": [0, 100],
//	  "max_velocity_mm_s": 10,
//	  "reading_rate_hz": 100,
//	  "device_info": {"port": "COM3", "device_id": 50081, ...},
//	  "timestamp": 1712345678.5,
//	  "timestamp_readable": "2024-04-05 21:34:38"
//	}
//
// Missing fields load as the stage defaults.
package persistence
