package spec

// Dependencies returns the names of other fields (inputs or computeds) that
// the computed field references. Identifiers that do not name a field, such
// as handler parameters, are excluded by the caller's field set.
func (s *Spec) Dependencies(c ComputedField) []string {
	fields := s.fieldSet()
	var deps []string
	for _, name := range Identifiers(c.Expr) {
		if name != c.Name && fields[name] {
			deps = append(deps, name)
		}
	}
	return deps
}

func (s *Spec) fieldSet() map[string]bool {
	set := make(map[string]bool, len(s.Inputs)+len(s.Computed))
	for _, f := range s.Inputs {
		set[f.Name] = true
	}
	for _, c := range s.Computed {
		set[c.Name] = true
	}
	return set
}

// TopoOrder returns the computed fields in dependency order: every field
// evaluates strictly after each field it references, with declaration order
// breaking ties. When the dependency graph has a cycle, the second result
// names every computed field on at least one cycle and the first is nil.
func (s *Spec) TopoOrder() ([]ComputedField, []string) {
	n := len(s.Computed)
	pos := make(map[string]int, n)
	for i, c := range s.Computed {
		pos[c.Name] = i
	}

	// Edges dep -> dependent, restricted to computed-to-computed references.
	deps := make([][]int, n)
	indegree := make([]int, n)
	for i, c := range s.Computed {
		for _, d := range s.Dependencies(c) {
			j, ok := pos[d]
			if !ok {
				continue // inputs are always available
			}
			deps[i] = append(deps[i], j)
			indegree[i]++
		}
	}
	dependents := make([][]int, n)
	for i, ds := range deps {
		for _, j := range ds {
			dependents[j] = append(dependents[j], i)
		}
	}

	// Kahn's algorithm, scanning in declaration order so ties resolve
	// deterministically.
	done := make([]bool, n)
	order := make([]ComputedField, 0, n)
	for {
		next := -1
		for i := 0; i < n; i++ {
			if !done[i] && indegree[i] == 0 {
				next = i
				break
			}
		}
		if next == -1 {
			break
		}
		done[next] = true
		order = append(order, s.Computed[next])
		for _, j := range dependents[next] {
			indegree[j]--
		}
	}
	if len(order) == n {
		return order, nil
	}
	return nil, s.cycleMembers(deps)
}

// cycleMembers returns the names of computed fields on at least one cycle,
// found via Tarjan's strongly connected components.
func (s *Spec) cycleMembers(deps [][]int) []string {
	n := len(s.Computed)
	index := make([]int, n)
	lowlink := make([]int, n)
	onStack := make([]bool, n)
	for i := range index {
		index[i] = -1
	}
	var stack []int
	var counter int
	var members []string

	var strongconnect func(v int)
	strongconnect = func(v int) {
		index[v] = counter
		lowlink[v] = counter
		counter++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range deps[v] {
			if index[w] == -1 {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack[w] && index[w] < lowlink[v] {
				lowlink[v] = index[w]
			}
		}

		if lowlink[v] == index[v] {
			var comp []int
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			if len(comp) > 1 {
				for _, w := range comp {
					members = append(members, s.Computed[w].Name)
				}
			} else {
				// Self-loop.
				w := comp[0]
				for _, d := range deps[w] {
					if d == w {
						members = append(members, s.Computed[w].Name)
						break
					}
				}
			}
		}
	}

	for v := 0; v < n; v++ {
		if index[v] == -1 {
			strongconnect(v)
		}
	}
	return members
}
