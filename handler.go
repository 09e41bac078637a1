package cachewire

import (
	"context"
	"fmt"
	"sync"

	"github.com/pior/cachewire/wire"
)

// Handler answers one request. It fills resp (type and parts); the server sets the
// transaction id and sends it. A returned error is sent back as an exception message.
type Handler interface {
	Serve(ctx context.Context, req, resp *wire.Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, req, resp *wire.Message) error

func (f HandlerFunc) Serve(ctx context.Context, req, resp *wire.Message) error {
	return f(ctx, req, resp)
}

// MemoryHandler serves region operations from memory.
type MemoryHandler struct {
	mu      sync.RWMutex
	regions map[string]map[string][]byte
}

func NewMemoryHandler() *MemoryHandler {
	return &MemoryHandler{regions: make(map[string]map[string][]byte)}
}

func (h *MemoryHandler) Serve(_ context.Context, req, resp *wire.Message) error {
	switch t := req.MessageType(); t {
	case wire.Ping:
		reply(resp)
		return nil

	case wire.Put:
		region, key, err := regionAndKey(req, 3)
		if err != nil {
			return err
		}
		// Received parts are owned by the message, the slice can be kept.
		value := req.Part(2).Bytes()

		h.mu.Lock()
		entries, ok := h.regions[region]
		if !ok {
			entries = make(map[string][]byte)
			h.regions[region] = entries
		}
		entries[key] = value
		h.mu.Unlock()

		reply(resp)
		return nil

	case wire.Get:
		region, key, err := regionAndKey(req, 2)
		if err != nil {
			return err
		}
		h.mu.RLock()
		value, found := h.regions[region][key]
		h.mu.RUnlock()

		resp.SetMessageType(wire.Response)
		resp.SetNumberOfParts(2)
		resp.AddBytePart(boolByte(found))
		resp.AddBytesPart(value)
		return nil

	case wire.Destroy:
		region, key, err := regionAndKey(req, 2)
		if err != nil {
			return err
		}
		h.mu.Lock()
		delete(h.regions[region], key)
		h.mu.Unlock()

		reply(resp)
		return nil

	case wire.ContainsKey:
		region, key, err := regionAndKey(req, 2)
		if err != nil {
			return err
		}
		h.mu.RLock()
		_, found := h.regions[region][key]
		h.mu.RUnlock()

		resp.SetMessageType(wire.Response)
		resp.SetNumberOfParts(1)
		resp.AddBytePart(boolByte(found))
		return nil

	case wire.Size:
		if req.NumberOfParts() < 1 {
			return fmt.Errorf("%s requires a region part", t)
		}
		region := req.Part(0).StringValue()
		h.mu.RLock()
		n := len(h.regions[region])
		h.mu.RUnlock()

		resp.SetMessageType(wire.Response)
		resp.SetNumberOfParts(1)
		resp.AddIntPart(int32(n))
		return nil

	default:
		return fmt.Errorf("unsupported message type %s", t)
	}
}

func regionAndKey(req *wire.Message, parts int) (region, key string, err error) {
	if req.NumberOfParts() < parts {
		return "", "", fmt.Errorf("%s requires %d parts, got %d", req.MessageType(), parts, req.NumberOfParts())
	}
	return req.Part(0).StringValue(), req.Part(1).StringValue(), nil
}

func reply(resp *wire.Message) {
	resp.SetMessageType(wire.Reply)
	resp.SetNumberOfParts(0)
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
