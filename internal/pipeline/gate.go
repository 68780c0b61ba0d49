package pipeline

import (
	"time"

	"github.com/soyeahso/vox/internal/domain"
	"github.com/soyeahso/vox/internal/logging"
)

// DefaultMaxUtterance bounds how long an utterance may stay open before it
// is force-sealed. Generous on purpose: it only guards against a
// stuck-open mic, not natural pauses.
const DefaultMaxUtterance = 30 * time.Second

// GateConfig controls utterance sealing.
type GateConfig struct {
	// MaxUtterance force-seals an utterance that has been open this long
	// regardless of the voice flag. Default: DefaultMaxUtterance.
	MaxUtterance time.Duration
}

// Gate turns a stream of voice/silence-classified audio frames into
// discrete sealed utterances. End of speech is modeled as a
// silence-after-voice transition rather than a fixed timer, so natural
// pauses inside a sentence are not cut off.
type Gate struct {
	cfg GateConfig
	log *logging.Logger

	frames   []domain.AudioFrame
	openedAt time.Time
}

// NewGate creates a gate with an empty buffer.
func NewGate(cfg GateConfig, log *logging.Logger) *Gate {
	if cfg.MaxUtterance <= 0 {
		cfg.MaxUtterance = DefaultMaxUtterance
	}
	return &Gate{cfg: cfg, log: log.Sub("gate")}
}

// Feed consumes one classified frame. It returns a sealed utterance and
// true when the frame completed one: a silence frame closing a non-empty
// buffer, or a voice frame tripping the max-open guard. Pure-silence
// frames with an empty buffer are discarded.
func (g *Gate) Feed(frame domain.AudioFrame) (domain.Utterance, bool) {
	if frame.HasVoice {
		if len(g.frames) == 0 {
			g.openedAt = frame.ReceivedAt
		}
		g.frames = append(g.frames, frame)

		if frame.ReceivedAt.Sub(g.openedAt) >= g.cfg.MaxUtterance {
			g.log.Warn().
				Dur("open", frame.ReceivedAt.Sub(g.openedAt)).
				Int("frames", len(g.frames)).
				Msg("utterance exceeded max duration, force-sealing")
			return g.seal(frame.ReceivedAt, true), true
		}
		return domain.Utterance{}, false
	}

	if len(g.frames) == 0 {
		return domain.Utterance{}, false
	}
	return g.seal(frame.ReceivedAt, false), true
}

// Open reports whether an utterance is currently accumulating.
func (g *Gate) Open() bool { return len(g.frames) > 0 }

// Reset discards any buffered frames without emitting. Used on abort.
func (g *Gate) Reset() { g.frames = nil }

func (g *Gate) seal(at time.Time, forced bool) domain.Utterance {
	size := 0
	for _, f := range g.frames {
		size += len(f.Data)
	}
	data := make([]byte, 0, size)
	for _, f := range g.frames {
		data = append(data, f.Data...)
	}

	u := domain.Utterance{
		Data:     data,
		Frames:   len(g.frames),
		OpenedAt: g.openedAt,
		SealedAt: at,
		Forced:   forced,
	}
	g.frames = nil

	g.log.Debug().
		Int("frames", u.Frames).
		Int("bytes", len(u.Data)).
		Bool("forced", forced).
		Msg("utterance sealed")
	return u
}
