package core

import "github.com/dkeye/classroom/internal/domain"

// peer implements Peer by pairing meta + transport.
type peer struct {
	cid  domain.ConnectionID
	meta domain.Member
	sig  SignalConnection
}

func NewPeer(cid domain.ConnectionID, meta domain.Member, sig SignalConnection) Peer {
	return &peer{cid: cid, meta: meta, sig: sig}
}

func (p *peer) ConnectionID() domain.ConnectionID { return p.cid }
func (p *peer) Meta() domain.Member               { return p.meta }
func (p *peer) Signal() SignalConnection          { return p.sig }
