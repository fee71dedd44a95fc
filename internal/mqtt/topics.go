package mqtt

import "strings"

// Message kinds under {prefix}/{deviceId}/...
const (
	KindCommand = "command"
	KindStatus  = "status"
	KindAck     = "ack"
)

// DeviceTopic builds {prefix}/{deviceID}/{kind}.
func DeviceTopic(prefix, deviceID, kind string) string {
	return strings.TrimSuffix(prefix, "/") + "/" + deviceID + "/" + kind
}

// Wildcard builds the subscription filter {prefix}/+/{kind}.
func Wildcard(prefix, kind string) string {
	return DeviceTopic(prefix, "+", kind)
}

// SplitDeviceTopic extracts the device id and kind from a topic under prefix.
func SplitDeviceTopic(prefix, topic string) (deviceID, kind string, ok bool) {
	rest, found := strings.CutPrefix(topic, strings.TrimSuffix(prefix, "/")+"/")
	if !found {
		return "", "", false
	}
	deviceID, kind, found = strings.Cut(rest, "/")
	if !found || deviceID == "" || kind == "" || strings.Contains(kind, "/") {
		return "", "", false
	}
	return deviceID, kind, true
}
