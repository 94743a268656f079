package routing

import (
	"fmt"
	"strings"
)

// FormatReport renders the flow table, the per-switch shortest paths and the
// topology as text for the debug log.
func FormatReport(ft *FlowTable) string {
	var b strings.Builder

	fmt.Fprintf(&b, "@@@ FLOW TABLE START (generation %d) @@@\n", ft.Generation())
	for i, e := range ft.Entries() {
		fmt.Fprintf(&b, "Device %2d->%2d: Go Port %2d;  ", e.Root, e.Dst, e.Port)
		if i%3 == 2 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n@@@ FLOW TABLE END @@@\n")

	b.WriteString("%%% SHORTEST PATH BEGIN %%%\n")
	for _, sw := range ft.Switches() {
		fmt.Fprintf(&b, "Switch %d:\n", sw)
		tree, ok := ft.Tree(sw)
		if !ok {
			continue
		}
		for _, dst := range tree.Reachable() {
			if dst == sw {
				continue
			}
			fmt.Fprintf(&b, " * To Switch %2d: %v\n", dst, tree.Path(dst))
		}
	}
	b.WriteString("%%% SHORTEST PATH END %%%\n")

	b.WriteString("&&& TOPOLOGY BEGIN &&&\n")
	for i, e := range Edges(ft) {
		fmt.Fprintf(&b, "%2d <-> %2d ", e.A, e.B)
		if i%4 == 3 {
			b.WriteString("\n")
		}
	}
	b.WriteString("\n&&& TOPOLOGY END &&&\n")

	for _, h := range ft.Hosts() {
		fmt.Fprintf(&b, "Host %s @ switch %d/%d\n", h.MAC, h.Switch, h.Port)
	}
	return b.String()
}
