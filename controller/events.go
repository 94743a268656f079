package controller

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/phx1999/SDN/routing"
	"github.com/phx1999/SDN/topology"

	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	KindSwitchEnter Kind = "switch_enter"
	KindSwitchLeave Kind = "switch_leave"
	KindHostAdd     Kind = "host_add"
	KindHostRemove  Kind = "host_remove"
	KindLinkAdd     Kind = "link_add"
	KindLinkDelete  Kind = "link_delete"
	KindPortModify  Kind = "port_modify"
)

var (
	ErrUnknownKind    = errors.New("unknown event kind")
	ErrMalformedEvent = errors.New("malformed event")
)

// Event is one topology change reported by the switch-facing layer.
type Event struct {
	Kind   Kind            `json:"kind"`
	Switch topology.DPID   `json:"switch,omitempty"`
	Port   topology.PortNo `json:"port,omitempty"`
	Live   bool            `json:"live,omitempty"`
	Link   *topology.Link  `json:"link,omitempty"`
	Host   *topology.Host  `json:"host,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case KindSwitchEnter, KindSwitchLeave:
		return fmt.Sprintf("%s(%d)", e.Kind, e.Switch)
	case KindPortModify:
		return fmt.Sprintf("%s(%d/%d live=%t)", e.Kind, e.Switch, e.Port, e.Live)
	case KindLinkAdd, KindLinkDelete:
		if e.Link != nil {
			return fmt.Sprintf("%s(%d/%d-%d/%d)", e.Kind, e.Link.A, e.Link.PortA, e.Link.B, e.Link.PortB)
		}
	case KindHostAdd, KindHostRemove:
		if e.Host != nil {
			return fmt.Sprintf("%s(%s @ %d/%d)", e.Kind, e.Host.MAC, e.Host.Switch, e.Host.Port)
		}
	}
	return string(e.Kind)
}

func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if err := ev.Validate(); err != nil {
		return Event{}, err
	}
	return ev, nil
}

func (e Event) Validate() error {
	switch e.Kind {
	case KindSwitchEnter, KindSwitchLeave, KindPortModify:
		return nil
	case KindLinkAdd, KindLinkDelete:
		if e.Link == nil {
			return fmt.Errorf("%w: %s without link", ErrMalformedEvent, e.Kind)
		}
		return nil
	case KindHostAdd, KindHostRemove:
		if e.Host == nil || e.Host.MAC == "" {
			return fmt.Errorf("%w: %s without host address", ErrMalformedEvent, e.Kind)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, e.Kind)
	}
}

// Apply performs the graph mutation for the event. changed reports whether
// the graph was modified and a recomputation is due.
func (e Event) Apply(m *routing.Manager) (changed bool, err error) {
	if err := e.Validate(); err != nil {
		return false, err
	}

	switch e.Kind {
	case KindSwitchEnter:
		return true, m.AddSwitch(e.Switch)
	case KindSwitchLeave:
		return true, m.RemoveSwitch(e.Switch)
	case KindLinkAdd:
		return true, m.AddLink(e.Link.A, e.Link.PortA, e.Link.B, e.Link.PortB)
	case KindLinkDelete:
		return m.RemoveLink(e.Link.A, e.Link.B), nil
	case KindHostAdd:
		return true, m.AddHost(*e.Host)
	case KindHostRemove:
		return true, m.RemoveHost(e.Host.MAC)
	case KindPortModify:
		if e.Live {
			// the link discovered on this port arrives as its own link_add
			log.Debugf("port %d/%d is up", e.Switch, e.Port)
			return false, nil
		}
		return m.PortDown(e.Switch, e.Port)
	}
	return false, nil
}

// SnapshotEvents returns the events that rebuild g from an empty graph:
// switches, then links, then hosts. Hosts whose switch is gone are left out.
func SnapshotEvents(g *topology.Graph) []Event {
	var events []Event
	for _, id := range g.Switches() {
		events = append(events, Event{Kind: KindSwitchEnter, Switch: id})
	}
	for _, l := range g.Links() {
		link := l
		events = append(events, Event{Kind: KindLinkAdd, Link: &link})
	}
	for _, h := range g.Hosts() {
		if !g.HasSwitch(h.Switch) {
			continue
		}
		host := h
		events = append(events, Event{Kind: KindHostAdd, Host: &host})
	}
	return events
}
