// Copyright 2026 The Keystone Authors
// SPDX-License-Identifier: Apache-2.0

package federation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/keystone-hs/keystone/lib/errkind"
	"github.com/keystone-hs/keystone/lib/event"
	"github.com/keystone-hs/keystone/lib/ref"
)

const (
	pathV1 = "/_matrix/federation/v1"
	pathV2 = "/_matrix/federation/v2"
)

// AliasLookup is the answer to a directory query: the room an alias
// names and the servers that claim to be in it. Source is the server
// that answered.
type AliasLookup struct {
	Alias   ref.RoomAlias
	RoomID  ref.RoomID
	Servers []ref.ServerName
	Source  ref.ServerName
}

// MakeJoinResponse is a remote server's join template.
type MakeJoinResponse struct {
	Event       *event.Proto
	RoomVersion string
}

// SendJoinResponse is the room snapshot a resident server returns for
// an accepted join.
type SendJoinResponse struct {
	Origin    ref.ServerName
	State     []*event.Event
	AuthChain []*event.Event
}

// MakeJoin asks destination for a join event template for userID in
// roomID.
func (t *Transport) MakeJoin(ctx context.Context, destination ref.ServerName, roomID ref.RoomID, userID ref.UserID) (MakeJoinResponse, error) {
	path := pathV1 + "/make_join/" + url.PathEscape(roomID.String()) + "/" + url.PathEscape(userID.String())
	body, err := t.Do(ctx, "make_join", http.MethodGet, EndpointURI(destination, path, nil), nil)
	if err != nil {
		return MakeJoinResponse{}, err
	}

	var wire struct {
		Event       json.RawMessage `json:"event"`
		RoomVersion string          `json:"room_version"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return MakeJoinResponse{}, fmt.Errorf("federation: make_join response from %s: %w", destination, err)
	}
	if len(wire.Event) == 0 {
		return MakeJoinResponse{}, fmt.Errorf("federation: make_join response from %s has no event", destination)
	}
	proto, err := event.ParseProto(wire.Event)
	if err != nil {
		return MakeJoinResponse{}, fmt.Errorf("federation: make_join response from %s: %w", destination, err)
	}
	return MakeJoinResponse{Event: proto, RoomVersion: wire.RoomVersion}, nil
}

// SendJoin submits a signed join event to destination and returns the
// room state and auth chain it answers with.
func (t *Transport) SendJoin(ctx context.Context, destination ref.ServerName, join *event.Event) (SendJoinResponse, error) {
	path := pathV2 + "/send_join/" + url.PathEscape(join.RoomID().String()) + "/" + url.PathEscape(join.ID().String())
	body, err := t.Do(ctx, "send_join", http.MethodPut, EndpointURI(destination, path, nil), join)
	if err != nil {
		return SendJoinResponse{}, err
	}

	var wire struct {
		Origin    string            `json:"origin"`
		State     []json.RawMessage `json:"state"`
		AuthChain []json.RawMessage `json:"auth_chain"`
	}
	if err := json.Unmarshal(body, &wire); err != nil {
		return SendJoinResponse{}, fmt.Errorf("federation: send_join response from %s: %w", destination, err)
	}

	response := SendJoinResponse{Origin: destination}
	if wire.Origin != "" {
		if response.Origin, err = ref.ParseServerName(wire.Origin); err != nil {
			return SendJoinResponse{}, fmt.Errorf("federation: send_join origin: %w", err)
		}
	}
	if response.State, err = parseEvents(wire.State); err != nil {
		return SendJoinResponse{}, fmt.Errorf("federation: send_join state from %s: %w", destination, err)
	}
	if response.AuthChain, err = parseEvents(wire.AuthChain); err != nil {
		return SendJoinResponse{}, fmt.Errorf("federation: send_join auth chain from %s: %w", destination, err)
	}
	return response, nil
}

// Query runs a federation query of queryType against destination.
func (t *Transport) Query(ctx context.Context, destination ref.ServerName, queryType string, params url.Values) (map[string]any, error) {
	path := pathV1 + "/query/" + url.PathEscape(queryType)
	body, err := t.Do(ctx, "query_"+queryType, http.MethodGet, EndpointURI(destination, path, params), nil)
	if err != nil {
		return nil, err
	}
	var result map[string]any
	if err := decodeJSON(body, &result); err != nil {
		return nil, fmt.Errorf("federation: %s query response from %s: %w", queryType, destination, err)
	}
	return result, nil
}

// QueryDirectory resolves alias by asking the server that owns it.
func (t *Transport) QueryDirectory(ctx context.Context, alias ref.RoomAlias) (AliasLookup, error) {
	source := alias.Server()
	result, err := t.Query(ctx, source, "directory", url.Values{"room_alias": {alias.String()}})
	if err != nil {
		return AliasLookup{}, err
	}

	rawRoom, _ := result["room_id"].(string)
	roomID, err := ref.ParseRoomID(rawRoom)
	if err != nil {
		return AliasLookup{}, fmt.Errorf("federation: directory answer for %s: %w", alias, err)
	}
	lookup := AliasLookup{Alias: alias, RoomID: roomID, Source: source}
	servers, _ := result["servers"].([]any)
	for _, raw := range servers {
		name, _ := raw.(string)
		server, err := ref.ParseServerName(name)
		if err != nil {
			t.logger.Warn("ignoring malformed server in directory answer", "alias", alias.String(), "server", name)
			continue
		}
		lookup.Servers = append(lookup.Servers, server)
	}
	return lookup, nil
}

// SendTransaction would push a transaction of PDUs and EDUs.
func (t *Transport) SendTransaction(_ context.Context, destination ref.ServerName, _ string, _ []*event.Event) error {
	return notImplemented("send transaction", destination)
}

// GetRoomState would fetch a room's state at an event.
func (t *Transport) GetRoomState(_ context.Context, destination ref.ServerName, _ ref.RoomID, _ ref.EventID) (SendJoinResponse, error) {
	return SendJoinResponse{}, notImplemented("get room state", destination)
}

// GetEvent would fetch a single event.
func (t *Transport) GetEvent(_ context.Context, destination ref.ServerName, _ ref.EventID) (*event.Event, error) {
	return nil, notImplemented("get event", destination)
}

// Backfill would fetch history older than from.
func (t *Transport) Backfill(_ context.Context, destination ref.ServerName, _ ref.RoomID, _ []ref.EventID, _ int) ([]*event.Event, error) {
	return nil, notImplemented("backfill", destination)
}

// Frontfill would fetch events missing between known extremities and
// a newer event.
func (t *Transport) Frontfill(_ context.Context, destination ref.ServerName, _ ref.RoomID, _ []ref.EventID, _ int) ([]*event.Event, error) {
	return nil, notImplemented("frontfill", destination)
}

func notImplemented(verb string, destination ref.ServerName) error {
	return fmt.Errorf("federation: %s to %s: %w", verb, destination, errkind.NotImplemented)
}

func parseEvents(raw []json.RawMessage) ([]*event.Event, error) {
	events := make([]*event.Event, 0, len(raw))
	for index, data := range raw {
		parsed, err := event.Parse(data)
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", index, err)
		}
		events = append(events, parsed)
	}
	return events, nil
}
