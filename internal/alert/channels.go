package alert

import (
	"skywarden/internal/config"
)

// Broadcaster delivers a payload to connected push consumers. The web
// package's websocket hub satisfies it.
type Broadcaster interface {
	Broadcast(message []byte)
}

// BuildChannels constructs every enabled channel from configuration.
// The MQTT channel connects lazily, so construction never blocks on a
// broker.
func BuildChannels(cfg config.NotificationsConfig, hub Broadcaster) []Channel {
	var channels []Channel

	if cfg.Audio.Enabled {
		channels = append(channels, NewAudioChannel(cfg.Audio))
	}
	if cfg.Email.Enabled {
		channels = append(channels, NewEmailChannel(cfg.Email))
	}
	if cfg.SMS.Enabled {
		channels = append(channels, NewSMSChannel(cfg.SMS))
	}
	if cfg.Push.Enabled && hub != nil {
		channels = append(channels, NewPushChannel(hub))
	}
	if cfg.MQTT.Enabled {
		channels = append(channels, NewMQTTChannel(cfg.MQTT))
	}
	if cfg.Log.Enabled {
		channels = append(channels, NewLogChannel())
	}

	return channels
}
