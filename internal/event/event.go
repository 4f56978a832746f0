// ABOUTME: Typed wire events for the boardroom engine stream protocol.
// ABOUTME: Parses and validates event:/data: payloads into a closed tagged union.

package event

import "encoding/json"

// Role identifies one of the fixed boardroom agent personas.
type Role string

const (
	RoleCritic      Role = "critic"
	RoleHistorian   Role = "historian"
	RoleExpander    Role = "expander"
	RolePragmatist  Role = "pragmatist"
	RoleVerifier    Role = "verifier"
	RoleSynthesizer Role = "synthesizer"
	RoleMediator    Role = "mediator"
)

// Roles lists every valid agent role in display order.
var Roles = []Role{
	RoleCritic,
	RoleHistorian,
	RoleExpander,
	RolePragmatist,
	RoleVerifier,
	RoleSynthesizer,
	RoleMediator,
}

// Valid reports whether r is a member of the closed role set.
func (r Role) Valid() bool {
	for _, known := range Roles {
		if r == known {
			return true
		}
	}
	return false
}

// Kind is the wire tag of an event.
type Kind string

const (
	KindMeta      Kind = "meta"       // announces round participants
	KindStream    Kind = "stream"     // incremental content for one agent
	KindStreamEnd Kind = "stream_end" // that agent finished
	KindError     Kind = "error"      // agent- or round-level failure
)

// Event is one parsed wire message. Exactly one kind is set; the payload
// fields that apply to other kinds are zero.
type Event struct {
	Kind Kind

	// SelectedAgents is populated for meta events.
	SelectedAgents []Role

	// Agent names the subject of stream/stream_end events. For error events
	// it is optional: empty means the whole round failed.
	Agent Role

	// Delta is the incremental content chunk of a stream event.
	Delta string

	// Message is the error text of an error event.
	Message string

	// ID is the wire event identifier when the transport provides one
	// (used for resume-from-last-id on reconnect).
	ID string
}

// Wire payload shapes, one per event kind.
type metaPayload struct {
	SelectedAgents []Role `json:"selected_agents"`
}

type streamPayload struct {
	Agent Role    `json:"agent"`
	Delta *string `json:"delta"`
}

type streamEndPayload struct {
	Agent Role `json:"agent"`
}

type errorPayload struct {
	Agent Role   `json:"agent"`
	Error string `json:"error"`
}

// Parse converts a raw event tag and its JSON payload into a typed Event.
// It returns nil for anything malformed: unknown tags, invalid JSON, roles
// outside the closed set, or missing required fields. A bad event must never
// abort the stream, so there is no error return — callers skip nil and move on.
func Parse(tag, payload string) *Event {
	switch Kind(tag) {
	case KindMeta:
		var p metaPayload
		if json.Unmarshal([]byte(payload), &p) != nil {
			return nil
		}
		if p.SelectedAgents == nil {
			return nil
		}
		for _, role := range p.SelectedAgents {
			if !role.Valid() {
				return nil
			}
		}
		return &Event{Kind: KindMeta, SelectedAgents: p.SelectedAgents}

	case KindStream:
		var p streamPayload
		if json.Unmarshal([]byte(payload), &p) != nil {
			return nil
		}
		if !p.Agent.Valid() || p.Delta == nil {
			return nil
		}
		return &Event{Kind: KindStream, Agent: p.Agent, Delta: *p.Delta}

	case KindStreamEnd:
		var p streamEndPayload
		if json.Unmarshal([]byte(payload), &p) != nil {
			return nil
		}
		if !p.Agent.Valid() {
			return nil
		}
		return &Event{Kind: KindStreamEnd, Agent: p.Agent}

	case KindError:
		var p errorPayload
		if json.Unmarshal([]byte(payload), &p) != nil {
			return nil
		}
		// Agent is optional for errors, but if present it must be valid.
		if p.Agent != "" && !p.Agent.Valid() {
			return nil
		}
		if p.Error == "" {
			return nil
		}
		return &Event{Kind: KindError, Agent: p.Agent, Message: p.Error}

	default:
		return nil
	}
}
