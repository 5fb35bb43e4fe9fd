package engine

import (
	"context"
	"encoding/hex"
	"net"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/pkg/errors"

	"github.com/blocktank/channel-backend/internal/model"
	"github.com/blocktank/channel-backend/internal/statemachine"
)

// ClaimChannel finalises a paid order with the customer's node URI
// (pubkey@host:port). Re-claiming an already claimed order replaces the
// remote node as long as the open has not started.
func (e *Engine) ClaimChannel(ctx context.Context, orderID, nodeURI, src string, private bool) (*model.Order, error) {
	remoteNode, err := parseNodeURI(nodeURI)
	if err != nil {
		return nil, err
	}

	if !e.guards.Acquire(orderID) {
		return nil, errors.Errorf("order %s already has a manual action in flight", orderID)
	}
	defer e.guards.Release(orderID)

	order, err := e.store.Order.GetByID(e.db, orderID)
	if err != nil {
		return nil, err
	}

	result, err := e.compliance.IsAddressBlacklisted(ctx, []string{remoteNode.PublicKey})
	if err != nil {
		return nil, errors.Wrap(err, "node compliance screen failed")
	}
	if result.Blacklisted {
		return nil, errors.Errorf("node %s failed compliance screening", remoteNode.PublicKey)
	}

	fields := map[string]interface{}{
		"remote_node":     remoteNode,
		"remote_node_src": src,
		"private_channel": private,
	}

	switch order.State {
	case model.OrderStatePaid:
		return e.sm.Apply(orderID, statemachine.TransitionClaim, fields)
	case model.OrderStateURISet:
		if err := e.store.Order.UpdateFields(e.db, orderID, fields); err != nil {
			return nil, err
		}
		return e.store.Order.GetByID(e.db, orderID)
	default:
		return nil, errors.Errorf("order %s cannot be claimed in state %s", orderID, order.State)
	}
}

// parseNodeURI validates a pubkey@host:port Lightning node URI.
func parseNodeURI(uri string) (model.RemoteNode, error) {
	parts := strings.SplitN(uri, "@", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return model.RemoteNode{}, errors.Errorf("invalid node URI %q, want pubkey@host:port", uri)
	}
	publicKey, address := parts[0], parts[1]

	raw, err := hex.DecodeString(publicKey)
	if err != nil {
		return model.RemoteNode{}, errors.Wrapf(err, "invalid node public key %q", publicKey)
	}
	if _, err := btcec.ParsePubKey(raw); err != nil {
		return model.RemoteNode{}, errors.Wrapf(err, "invalid node public key %q", publicKey)
	}

	host, port, err := net.SplitHostPort(address)
	if err != nil || host == "" || port == "" {
		return model.RemoteNode{}, errors.Errorf("invalid node address %q, want host:port", address)
	}

	return model.RemoteNode{
		PublicKey: publicKey,
		Address:   address,
	}, nil
}
