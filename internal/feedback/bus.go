package feedback

import "github.com/mtzanidakis/ghostgate/internal/natsbus"

// BusSink publishes cues on events.cue.<cue> for the browser to render.
type BusSink struct {
	pub natsbus.Publisher
}

func NewBusSink(pub natsbus.Publisher) *BusSink {
	return &BusSink{pub: pub}
}

func (s *BusSink) Play(cue Cue) error {
	return s.pub.PublishJSON(natsbus.TopicCue(string(cue)), natsbus.NewEvent("cue", map[string]string{"cue": string(cue)}))
}
