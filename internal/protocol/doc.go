// Package protocol defines the MQTT topic hierarchy and JSON payload
// schemas spoken by the device bridge.
//
// Every topic lives under devices/{device_id}/:
//
//	devices/{id}/capabilities          retained device description
//	devices/{id}/status                retained online/offline (also the last will)
//	devices/{id}/sensors/{type}/data   sensor readings
//	devices/{id}/actuators/{type}/status  actuator state reports
//	devices/{id}/actuators/{type}/cmd  inbound commands
//	devices/{id}/error                 error reports
//
// The package is pure data: topic builders, payload structs, and the
// command parser. It holds no connection state and does no I/O, so the
// bridge and its tests can share it freely.
package protocol
