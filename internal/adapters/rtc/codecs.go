package rtc

import (
	"strconv"
	"strings"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
)

// ParseCodecs turns "kind/name/clock[/channels]" entries into router codecs.
// Preferred payload types are assigned from 100 in order.
func ParseCodecs(specs []string) ([]core.Codec, error) {
	out := make([]core.Codec, 0, len(specs))
	for i, s := range specs {
		c, err := parseCodec(s)
		if err != nil {
			return nil, err
		}
		c.PreferredPayloadType = uint8(100 + i)
		out = append(out, c)
	}
	return out, nil
}

func parseCodec(s string) (core.Codec, error) {
	parts := strings.Split(strings.TrimSpace(s), "/")
	if len(parts) < 3 || len(parts) > 4 {
		return core.Codec{}, errors.Wrapf(domain.ErrInvalidInput, "codec %q: want kind/name/clock[/channels]", s)
	}
	kind, err := domain.ParseMediaKind(parts[0])
	if err != nil {
		return core.Codec{}, errors.Wrapf(err, "codec %q", s)
	}
	clock, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil || clock == 0 {
		return core.Codec{}, errors.Wrapf(domain.ErrInvalidInput, "codec %q: bad clock rate", s)
	}
	c := core.Codec{Kind: kind, MimeType: string(kind) + "/" + parts[1], ClockRate: uint32(clock)}
	if len(parts) == 4 {
		ch, err := strconv.ParseUint(parts[3], 10, 16)
		if err != nil || ch == 0 {
			return core.Codec{}, errors.Wrapf(domain.ErrInvalidInput, "codec %q: bad channel count", s)
		}
		c.Channels = uint16(ch)
	}
	return c, nil
}
