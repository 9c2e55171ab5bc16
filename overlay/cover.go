package overlay

import (
	"crypto/rand"
	"encoding/base64"
	mrand "math/rand"
	"time"

	z "github.com/veilnet/veil/logger"
	"github.com/veilnet/veil/types"
)

const (
	coverTrafficBase   = 5 * time.Second
	coverTrafficJitter = 10 * time.Second
	coverTrafficBytes  = 64
)

// coverTrafficLoop sends a dummy frame to one random peer every
// 5s + Uniform[0, 10s], so that an observer cannot tell real envelope
// exchanges from background noise. Recipients have no handler for the frame.
func (n *Node) coverTrafficLoop() {
	for {
		interval := coverTrafficBase + time.Duration(mrand.Int63n(int64(coverTrafficJitter)))

		select {
		case <-n.done:
			return
		case <-time.After(interval):
		}

		p := n.peers.Random()
		if p == nil {
			continue
		}

		data := make([]byte, coverTrafficBytes)
		_, err := rand.Read(data)
		if err != nil {
			continue
		}

		err = writeFrame(p.conn, p, types.DummyTrafficMessage{
			Data:      base64.StdEncoding.EncodeToString(data),
			Timestamp: time.Now().UnixMilli(),
		})
		if err != nil {
			z.Logger.Debug().Msgf("[%s] cover traffic to peer %d failed: %v", n.StreamAddr(), p.id, err)
			n.peers.Remove(p.id)
		}
	}
}
