package kgo

import (
	"context"

	"github.com/dcrodman/kaf/kerr"
	"github.com/dcrodman/kaf/kmsg"
)

// GroupListing is one entry of a ListGroups response.
type GroupListing struct {
	GroupID      string
	ProtocolType string
}

// ListGroups asks b for every group it coordinates (spec §4.A ListGroups,
// exposed here as a thin client method since the wire support is mandatory
// and every implemented request kind should be reachable from application
// code).
func (cl *Client) ListGroups(ctx context.Context, b *broker) ([]GroupListing, error) {
	if b == nil {
		b = cl.leastRecentlyUsedBroker()
	}
	if b == nil {
		return nil, ErrNoLeader
	}
	resp, err := b.waitResp(ctx, &kmsg.ListGroupsRequest{})
	if err != nil {
		return nil, err
	}
	lresp := resp.(*kmsg.ListGroupsResponse)
	if rerr := kerr.ErrorForCode(lresp.ErrorCode); rerr != nil {
		return nil, rerr
	}
	out := make([]GroupListing, len(lresp.Groups))
	for i, g := range lresp.Groups {
		out[i] = GroupListing{GroupID: g.GroupID, ProtocolType: g.ProtocolType}
	}
	return out, nil
}

// GroupDescription is one entry of a DescribeGroups response.
type GroupDescription struct {
	GroupID      string
	State        string
	ProtocolType string
	Protocol     string
	Members      []GroupMemberDescription
	Err          error
}

// GroupMemberDescription describes one member within a DescribeGroups
// response.
type GroupMemberDescription struct {
	MemberID   string
	ClientID   string
	ClientHost string
}

// DescribeGroups asks b to describe each named group (spec §4.A
// DescribeGroups).
func (cl *Client) DescribeGroups(ctx context.Context, b *broker, groupIDs []string) ([]GroupDescription, error) {
	if b == nil {
		b = cl.leastRecentlyUsedBroker()
	}
	if b == nil {
		return nil, ErrNoLeader
	}
	resp, err := b.waitResp(ctx, &kmsg.DescribeGroupsRequest{GroupIDs: groupIDs})
	if err != nil {
		return nil, err
	}
	dresp := resp.(*kmsg.DescribeGroupsResponse)

	out := make([]GroupDescription, len(dresp.Groups))
	for i, g := range dresp.Groups {
		d := GroupDescription{
			GroupID:      g.GroupID,
			State:        g.State,
			ProtocolType: g.ProtocolType,
			Protocol:     g.Protocol,
			Err:          kerr.ErrorForCode(g.ErrorCode),
		}
		for _, m := range g.Members {
			d.Members = append(d.Members, GroupMemberDescription{
				MemberID:   m.MemberID,
				ClientID:   m.ClientID,
				ClientHost: m.ClientHost,
			})
		}
		out[i] = d
	}
	return out, nil
}
