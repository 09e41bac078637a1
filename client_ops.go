package cachewire

import (
	"context"
	"fmt"

	"github.com/pior/cachewire/wire"
)

// Region operations. Every keyed request carries [region, key, ...] as parts and is
// routed by region and key together.

// Put stores value under key in region.
func (c *Client) Put(ctx context.Context, region, key string, value []byte) error {
	req := c.NewRequest(wire.Put, 3)
	req.AddStringPart(region, true)
	req.AddStringPart(key, false)
	req.AddBytesPart(value)

	resp, err := c.Execute(ctx, routingKey(region, key), req)
	if err != nil {
		return err
	}
	defer resp.Clear()
	return expectType(resp, wire.Reply)
}

// Get returns the value stored under key in region. found is false on a miss.
func (c *Client) Get(ctx context.Context, region, key string) (value []byte, found bool, err error) {
	req := c.NewRequest(wire.Get, 2)
	req.AddStringPart(region, true)
	req.AddStringPart(key, false)

	resp, err := c.Execute(ctx, routingKey(region, key), req)
	if err != nil {
		return nil, false, err
	}
	defer resp.Clear()
	if err := expectParts(resp, wire.Response, 2); err != nil {
		return nil, false, err
	}

	flag, err := resp.Part(0).Byte()
	if err != nil {
		return nil, false, err
	}
	if flag == 0 {
		return nil, false, nil
	}
	return resp.Part(1).Bytes(), true, nil
}

// Destroy removes key from region. Removing a missing key is not an error.
func (c *Client) Destroy(ctx context.Context, region, key string) error {
	req := c.NewRequest(wire.Destroy, 2)
	req.AddStringPart(region, true)
	req.AddStringPart(key, false)

	resp, err := c.Execute(ctx, routingKey(region, key), req)
	if err != nil {
		return err
	}
	defer resp.Clear()
	return expectType(resp, wire.Reply)
}

// ContainsKey reports whether region holds key.
func (c *Client) ContainsKey(ctx context.Context, region, key string) (bool, error) {
	req := c.NewRequest(wire.ContainsKey, 2)
	req.AddStringPart(region, true)
	req.AddStringPart(key, false)

	resp, err := c.Execute(ctx, routingKey(region, key), req)
	if err != nil {
		return false, err
	}
	defer resp.Clear()
	if err := expectParts(resp, wire.Response, 1); err != nil {
		return false, err
	}

	flag, err := resp.Part(0).Byte()
	return flag != 0, err
}

// Size returns the number of entries in region, summed over every server.
func (c *Client) Size(ctx context.Context, region string) (int, error) {
	total := 0
	for _, addr := range c.servers.List() {
		req := c.NewRequest(wire.Size, 1)
		req.AddStringPart(region, true)
		req.SetTransactionID(c.nextTransactionID())
		c.stats.recordRequest()

		resp, err := c.executeOn(ctx, addr, req)
		if err != nil {
			c.recordError()
			return 0, err
		}
		err = expectParts(resp, wire.Response, 1)
		if err == nil {
			var n int32
			n, err = resp.Part(0).Int()
			total += int(n)
		}
		resp.Clear()
		if err != nil {
			c.recordError()
			return 0, err
		}
		c.recordOutcome(outcomeOK)
	}
	return total, nil
}

// Ping checks every server with a ping message.
func (c *Client) Ping(ctx context.Context) error {
	for _, addr := range c.servers.List() {
		req := c.NewRequest(wire.Ping, 0)
		req.SetTransactionID(c.nextTransactionID())

		resp, err := c.executeOn(ctx, addr, req)
		if err != nil {
			return fmt.Errorf("ping %s: %w", addr, err)
		}
		err = expectType(resp, wire.Reply)
		resp.Clear()
		if err != nil {
			return fmt.Errorf("ping %s: %w", addr, err)
		}
	}
	return nil
}

func routingKey(region, key string) string {
	return region + "/" + key
}

func expectType(resp *wire.Message, t wire.MessageType) error {
	if resp.MessageType() != t {
		return fmt.Errorf("cachewire: unexpected response %s, want %s", resp.MessageType(), t)
	}
	return nil
}

func expectParts(resp *wire.Message, t wire.MessageType, n int) error {
	if err := expectType(resp, t); err != nil {
		return err
	}
	if resp.NumberOfParts() < n {
		return fmt.Errorf("cachewire: %s has %d parts, want %d", t, resp.NumberOfParts(), n)
	}
	return nil
}
