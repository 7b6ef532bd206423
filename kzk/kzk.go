// Package kzk is a thin client over the coordinator-service protocol (spec
// §6): a generic hierarchical key/value store with ephemeral nodes and
// watches, used by the group coordinator client (spec §4.F) for membership
// nodes and their watches. It wraps github.com/samuel/go-zookeeper/zk, grounded
// on the coordinator-client shape used by ZooKeeper-backed consumer groups
// in the retrieval pack (kafka-pixy, kapacitor).
package kzk

import (
	"time"

	"github.com/samuel/go-zookeeper/zk"
)

// Client talks to the coordinator-service ensemble.
type Client struct {
	conn *zk.Conn
}

// Dial connects to the ensemble at hosts, matching zk.Connect's own
// sessionTimeout contract.
func Dial(hosts []string, sessionTimeout time.Duration) (*Client, error) {
	conn, _, err := zk.Connect(hosts, sessionTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn}, nil
}

// Close ends the session, which deletes every ephemeral node this client
// created (spec §6 "loss of session deletes the child and triggers
// rebalance in other members").
func (c *Client) Close() { c.conn.Close() }

var worldACL = zk.WorldACL(zk.PermAll)

// CreateEphemeral creates path as an ephemeral node holding data; it
// disappears when this client's session ends.
func (c *Client) CreateEphemeral(path string, data []byte) (string, error) {
	return c.conn.Create(path, data, zk.FlagEphemeral, worldACL)
}

// CreatePersistent creates path as a durable node, creating it idempotently
// if it already exists.
func (c *Client) CreatePersistent(path string, data []byte) (string, error) {
	created, err := c.conn.Create(path, data, 0, worldACL)
	if err == zk.ErrNodeExists {
		return path, nil
	}
	return created, err
}

// GetChildren lists path's direct children, used to enumerate current group
// membership (spec §6 "Membership is represented as ephemeral children
// under a group znode").
func (c *Client) GetChildren(path string) ([]string, error) {
	children, _, err := c.conn.Children(path)
	return children, err
}

// GetData reads path's data.
func (c *Client) GetData(path string) ([]byte, error) {
	data, _, err := c.conn.Get(path)
	return data, err
}

// SetData overwrites path's data unconditionally (version -1 matches any
// version).
func (c *Client) SetData(path string, data []byte) error {
	_, err := c.conn.Set(path, data, -1)
	return err
}

// ExistsWatch reports whether path exists and returns a channel that fires
// once when path's existence state changes, the building block other
// group members use to notice a peer's ephemeral membership node vanish and
// trigger a rebalance.
func (c *Client) ExistsWatch(path string) (bool, <-chan zk.Event, error) {
	exists, _, events, err := c.conn.ExistsW(path)
	return exists, events, err
}
