package rtc

import (
	"time"

	"github.com/pion/turn/v4"
	"github.com/pion/webrtc/v4"
	"github.com/pkg/errors"
)

const defaultSTUN = "stun:stun.l.google.com:19302"

type ICEConfig struct {
	STUNURLs   []string
	TURNURLs   []string
	TURNSecret string
	TURNTTL    time.Duration
}

// ICEServers lists the servers clients should use. TURN entries get
// time-limited REST credentials derived from the shared secret.
func ICEServers(cfg ICEConfig) ([]webrtc.ICEServer, error) {
	stun := cfg.STUNURLs
	if len(stun) == 0 {
		stun = []string{defaultSTUN}
	}
	servers := []webrtc.ICEServer{{URLs: stun}}
	if len(cfg.TURNURLs) == 0 {
		return servers, nil
	}
	if cfg.TURNSecret == "" {
		return nil, errors.New("turn urls configured without a shared secret")
	}
	ttl := cfg.TURNTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	user, pass, err := turn.GenerateLongTermCredentials(cfg.TURNSecret, ttl)
	if err != nil {
		return nil, errors.Wrap(err, "turn credentials")
	}
	return append(servers, webrtc.ICEServer{URLs: cfg.TURNURLs, Username: user, Credential: pass}), nil
}
