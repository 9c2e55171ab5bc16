package udp

import (
	"net"
	"os"
	"sync"
	"time"

	"golang.org/x/xerrors"

	"github.com/veilnet/veil/transport"
)

const bufSize = 65000

// NewUDP returns a new udp transport implementation.
func NewUDP() transport.Transport {
	return &UDP{}
}

// UDP implements a transport layer using UDP
//
// - implements transport.Transport
type UDP struct {
}

// CreateSocket implements transport.Transport
func (n *UDP) CreateSocket(address string) (transport.ClosableSocket, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, xerrors.Errorf("failed to resolve udp address (%s) : %v", address, err)
	}

	ln, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, xerrors.Errorf("failed to listen to the given address (%s): %v", address, err)
	}

	return &Socket{conn: ln}, nil
}

// Socket implements a network socket using UDP. Every outgoing frame leaves
// from the listening port, so a remote NAT sees one stable source endpoint.
//
// - implements transport.Socket
// - implements transport.ClosableSocket
type Socket struct {
	conn *net.UDPConn
	ins  datagrams
	outs datagrams
}

type datagrams struct {
	sync.Mutex
	data []transport.Datagram
}

func (d *datagrams) add(dg transport.Datagram) {
	d.Lock()
	defer d.Unlock()

	d.data = append(d.data, dg.Copy())
}

// Close implements transport.ClosableSocket. It returns an error if already
// closed.
func (s *Socket) Close() error {
	return s.conn.Close()
}

// Send implements transport.Socket
func (s *Socket) Send(dest string, frame []byte, timeout time.Duration) error {
	destAddr, err := net.ResolveUDPAddr("udp", dest)
	if err != nil {
		return xerrors.Errorf("failed to resolve destination address (%s): %v", dest, err)
	}

	if timeout > 0 {
		err = s.conn.SetWriteDeadline(time.Now().Add(timeout))
		if err != nil {
			return xerrors.Errorf("failed to set a WriteDeadline: %v", err)
		}
	}

	_, err = s.conn.WriteToUDP(frame, destAddr)
	if err != nil {
		return xerrors.Errorf("failed to write frame [%v]: %v", len(frame), err)
	}

	s.outs.add(transport.Datagram{Source: dest, Payload: frame})
	return nil
}

// Recv implements transport.Socket. It blocks until a frame is received, or
// the timeout is reached. In the case the timeout is reached, return a
// TimeoutError.
func (s *Socket) Recv(timeout time.Duration) (transport.Datagram, error) {
	var newDg transport.Datagram

	if timeout > 0 {
		err := s.conn.SetReadDeadline(time.Now().Add(timeout))
		if err != nil {
			return newDg, xerrors.Errorf("failed to set a ReadDeadline: %v", err)
		}
	}

	buf := make([]byte, bufSize)

	nRead, from, err := s.conn.ReadFromUDP(buf)
	if err != nil {
		if os.IsTimeout(err) {
			return newDg, transport.TimeoutError(0)
		}
		return newDg, err
	}

	newDg = transport.Datagram{
		Source:  from.String(),
		Payload: buf[:nRead],
	}

	s.ins.add(newDg)
	return newDg.Copy(), nil
}

// GetAddress implements transport.Socket. It returns the address assigned. Can
// be useful in the case one provided a :0 address, which makes the system use a
// random free port.
func (s *Socket) GetAddress() string {
	return s.conn.LocalAddr().String()
}

// GetIns implements transport.Socket
func (s *Socket) GetIns() []transport.Datagram {
	s.ins.Lock()
	defer s.ins.Unlock()
	return s.ins.data
}

// GetOuts implements transport.Socket
func (s *Socket) GetOuts() []transport.Datagram {
	s.outs.Lock()
	defer s.outs.Unlock()
	return s.outs.data
}
