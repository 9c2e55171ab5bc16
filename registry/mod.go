package registry

import (
	"encoding/json"
	"sync"

	"golang.org/x/xerrors"

	"github.com/veilnet/veil/types"
)

// ErrMalformedFrame is returned for frames that cannot be decoded, carry an
// unknown type tag, or have no registered handler. Callers drop such frames
// silently.
var ErrMalformedFrame = xerrors.New("malformed frame")

// Exec is the type of function executed on a decoded message. from is the
// source of the frame; its format is up to the transport feeding the
// registry.
type Exec func(msg types.Message, from string) error

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		prototypes: make(map[string]types.Message),
		handlers:   make(map[string]Exec),
	}
}

// Registry is the single decode point for wire frames: it maps type tags to
// message prototypes and handlers. Frames with an unknown tag never reach a
// handler.
type Registry struct {
	sync.Mutex
	prototypes map[string]types.Message
	handlers   map[string]Exec
}

// RegisterMessage makes a message type decodable without attaching a handler.
// A decodable message with no handler is dropped by Process.
func (r *Registry) RegisterMessage(m types.Message) {
	r.Lock()
	defer r.Unlock()

	r.prototypes[m.Name()] = m
}

// RegisterMessageCallback makes a message type decodable and attaches the
// handler executed on every decoded instance.
func (r *Registry) RegisterMessageCallback(m types.Message, exec Exec) {
	r.Lock()
	defer r.Unlock()

	r.prototypes[m.Name()] = m
	r.handlers[m.Name()] = exec
}

// Decode parses a frame into its registered message type. Returns
// ErrMalformedFrame for unparseable frames and unknown tags.
func (r *Registry) Decode(frame []byte) (types.Message, error) {
	var probe struct {
		Type string `json:"type"`
	}

	err := json.Unmarshal(frame, &probe)
	if err != nil || probe.Type == "" {
		return nil, ErrMalformedFrame
	}

	r.Lock()
	prototype, ok := r.prototypes[probe.Type]
	r.Unlock()
	if !ok {
		return nil, ErrMalformedFrame
	}

	msg := prototype.NewEmpty()
	err = json.Unmarshal(frame, msg)
	if err != nil {
		return nil, ErrMalformedFrame
	}

	return msg, nil
}

// Process decodes a frame and executes its handler. Frames that do not
// decode, and frames without a handler, yield ErrMalformedFrame.
func (r *Registry) Process(frame []byte, from string) error {
	msg, err := r.Decode(frame)
	if err != nil {
		return err
	}

	r.Lock()
	exec, ok := r.handlers[msg.Name()]
	r.Unlock()
	if !ok {
		return ErrMalformedFrame
	}

	return exec(msg, from)
}
