package feedback

import "io"

// BellSink rings the terminal bell. Only the cues worth interrupting
// for make a sound.
type BellSink struct {
	w io.Writer
}

func NewBellSink(w io.Writer) *BellSink {
	return &BellSink{w: w}
}

func (s *BellSink) Play(cue Cue) error {
	switch cue {
	case CueAccessGranted, CueShutdown, CueBurn:
		_, err := io.WriteString(s.w, "\a")
		return err
	}
	return nil
}
