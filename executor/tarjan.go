package executor

import "github.com/minutemodem/eparl/types"

// tarjan computes the strongly connected components of the graph
// described by edges (adjacency keyed by vertex id), visiting vertices
// and their outgoing edges in a fixed order so that two replicas running
// this over identical graphs produce byte-identical SCC sequences.
//
// The returned components are in the order Tarjan's algorithm completes
// them: for any edge u -> v crossing two components, the component
// containing v is completed, and therefore appears earlier in the
// result, before the component containing u. Since edges here point from
// a dependent instance to its dependency, this is exactly
// "deepest dependencies first".
type tarjanState struct {
	edges   map[types.InstanceID][]types.InstanceID
	index   map[types.InstanceID]int
	lowlink map[types.InstanceID]int
	onStack map[types.InstanceID]bool
	stack   []types.InstanceID
	next    int
	out     [][]types.InstanceID
}

func tarjanSCCs(vertices []types.InstanceID, edges map[types.InstanceID][]types.InstanceID) [][]types.InstanceID {
	st := &tarjanState{
		edges:   edges,
		index:   make(map[types.InstanceID]int),
		lowlink: make(map[types.InstanceID]int),
		onStack: make(map[types.InstanceID]bool),
	}
	for _, v := range vertices {
		if _, visited := st.index[v]; !visited {
			st.strongConnect(v)
		}
	}
	return st.out
}

func (st *tarjanState) strongConnect(v types.InstanceID) {
	st.index[v] = st.next
	st.lowlink[v] = st.next
	st.next++
	st.stack = append(st.stack, v)
	st.onStack[v] = true

	for _, w := range st.edges[v] {
		if _, visited := st.index[w]; !visited {
			st.strongConnect(w)
			if st.lowlink[w] < st.lowlink[v] {
				st.lowlink[v] = st.lowlink[w]
			}
		} else if st.onStack[w] {
			if st.index[w] < st.lowlink[v] {
				st.lowlink[v] = st.index[w]
			}
		}
	}

	if st.lowlink[v] == st.index[v] {
		var scc []types.InstanceID
		for {
			n := len(st.stack) - 1
			w := st.stack[n]
			st.stack = st.stack[:n]
			st.onStack[w] = false
			scc = append(scc, w)
			if w == v {
				break
			}
		}
		st.out = append(st.out, scc)
	}
}
