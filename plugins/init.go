// Package plugins registers all built-in plugins.
package plugins

import (
	"firestige.xyz/sle/pkg/plugin"
	"firestige.xyz/sle/plugins/sink/kafka"
	"firestige.xyz/sle/plugins/sink/udp"
	"firestige.xyz/sle/plugins/sink/websocket"
)

func init() {
	// Register frame sink plugins
	plugin.RegisterSink("udp", udp.NewUDPSink)
	plugin.RegisterSink("kafka", kafka.NewKafkaSink)
	plugin.RegisterSink("websocket", websocket.NewWebSocketSink)
}
