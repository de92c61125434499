package app

import (
	"strings"

	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/pkg/errors"
)

// Quality is a viewer-selected receive tier.
type Quality string

const (
	QualityLow    Quality = "low"
	QualityMedium Quality = "medium"
	QualityHigh   Quality = "high"
)

func ParseQuality(s string) (Quality, error) {
	switch q := Quality(strings.ToLower(strings.TrimSpace(s))); q {
	case QualityLow, QualityMedium, QualityHigh:
		return q, nil
	default:
		return "", errors.Wrapf(domain.ErrInvalidInput, "unknown quality %q", s)
	}
}

// Layer is the simulcast/SVC index of the tier.
func (q Quality) Layer() int {
	switch q {
	case QualityLow:
		return 0
	case QualityMedium:
		return 1
	default:
		return 2
	}
}

func (q Quality) Layers() core.Layers {
	return core.Layers{Spatial: q.Layer(), Temporal: q.Layer()}
}

// MaxBitrate is the sender-side encoding cap clients pair with the tier.
func (q Quality) MaxBitrate() uint64 {
	switch q {
	case QualityLow:
		return 100_000
	case QualityMedium:
		return 300_000
	default:
		return 900_000
	}
}

// QualityTarget is the set of consumers a tier change applies to.
type QualityTarget struct {
	Consumers []domain.ConsumerID
	Layers    core.Layers
}

// QualitySelector resolves set-quality requests against the Connection State Table.
type QualitySelector struct {
	conns *Registry
}

func NewQualitySelector(conns *Registry) *QualitySelector {
	return &QualitySelector{conns: conns}
}

// Select maps the tier to layers and collects the consumers of pid it applies to.
// Without a target user these are the caller's own consumers. With one, the
// caller must own pid and the target's consumers of it are steered instead.
func (s *QualitySelector) Select(cid domain.ConnectionID, pid domain.ProducerID, q Quality, target domain.UserID) (QualityTarget, error) {
	b, err := s.conns.Binding(cid)
	if err != nil {
		return QualityTarget{}, err
	}
	out := QualityTarget{Layers: q.Layers()}
	if target == "" || target == b.Member.User.ID {
		out.Consumers = s.conns.ConsumersOf(cid, pid)
		return out, nil
	}
	if !s.conns.OwnsProducer(cid, pid) {
		return QualityTarget{}, errors.Wrapf(domain.ErrNotFound, "producer %s not owned by caller", pid)
	}
	for _, peer := range s.conns.ConnectionsOf(b.SessionID, target) {
		out.Consumers = append(out.Consumers, s.conns.ConsumersOf(peer, pid)...)
	}
	return out, nil
}
