package alert

import (
	"context"
	"os/exec"

	"github.com/pkg/errors"

	"skywarden/internal/config"
	"skywarden/internal/models"
)

// AudioChannel plays a local alarm sound through an external player
// binary. The context deadline kills a wedged player process.
type AudioChannel struct {
	player    string
	soundFile string
}

func NewAudioChannel(cfg config.AudioChannelConfig) *AudioChannel {
	return &AudioChannel{player: cfg.Player, soundFile: cfg.SoundFile}
}

func (a *AudioChannel) Name() string { return "audio" }

func (a *AudioChannel) Send(ctx context.Context, _ models.DetectionEvent, _ []byte) error {
	if a.soundFile == "" {
		return errors.New("no sound file configured")
	}
	cmd := exec.CommandContext(ctx, a.player, a.soundFile)
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "play %s with %s", a.soundFile, a.player)
	}
	return nil
}
