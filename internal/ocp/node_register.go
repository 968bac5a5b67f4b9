// SPDX-License-Identifier: AGPL-3.0-or-later
// OCP - Orchestrator Control Protocol
// Copyright (C) 2023-2026 Jacob McSwain
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.

package ocp

// registerParameter is the shared core of every RegisterX helper: it
// name-checks against the current container, inserts the parameter into the
// registry, projects it into the capability tree at the node's current
// object-path cursor, and fires the registration MOD (§4.1, §4.2).
func (n *Node) registerParameter(name string, value Value, access Access, typeHint string, min, max, step *float64) (*Parameter, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	if err := n.checkNameFreeLocked(n.curPath, name); err != nil {
		return nil, err
	}

	p := NewParameter(name, value, access, typeHint, "")
	p.Min, p.Max, p.Step = min, max, step
	p.ObjectPath = objectPath(n.curPath, name)
	p.bindOwner(n)

	n.registry.Insert(p)
	n.tree.Set(p.ObjectPath, p.ToDict())
	n.notifyModified(p.ObjectPath, map[string]Value{name: p.ToDict()}, nil)
	return p, nil
}

// checkNameFreeLocked must be called with n.mu held. It rejects a name
// already present as a key in the map at containerPath, mirroring pyZOCP's
// _validate_name (SPEC_FULL §F; spec.md itself is silent on the rule).
func (n *Node) checkNameFreeLocked(containerPath []string, name string) error {
	existing, err := n.tree.Get(containerPath)
	if err != nil {
		return nil
	}
	m, ok := existing.Map()
	if !ok {
		return nil
	}
	if _, exists := m[name]; exists {
		return containerErr(name, containerPath)
	}
	return nil
}

// RegisterBool registers a bool-valued parameter.
func (n *Node) RegisterBool(name string, value bool, access Access) (*Parameter, error) {
	return n.registerParameter(name, NewBool(value), access, "bool", nil, nil, nil)
}

// RegisterInt registers an int-valued parameter with optional bounds.
func (n *Node) RegisterInt(name string, value int64, access Access, min, max, step *float64) (*Parameter, error) {
	return n.registerParameter(name, NewInt(value), access, "int", min, max, step)
}

// RegisterFloat registers a float-valued parameter with optional bounds.
func (n *Node) RegisterFloat(name string, value float64, access Access, min, max, step *float64) (*Parameter, error) {
	return n.registerParameter(name, NewFloat(value), access, "float", min, max, step)
}

// RegisterPercent registers a float-valued parameter with advisory bounds
// min=0 and max=100, the one bounded shorthand pyZOCP exposes directly
// (SPEC_FULL §F). The value is not clamped to those bounds.
func (n *Node) RegisterPercent(name string, value float64, access Access) (*Parameter, error) {
	min, max := 0.0, 100.0
	return n.registerParameter(name, NewFloat(value), access, "percent", &min, &max, nil)
}

// RegisterString registers a string-valued parameter.
func (n *Node) RegisterString(name, value string, access Access) (*Parameter, error) {
	return n.registerParameter(name, NewString(value), access, "string", nil, nil, nil)
}

// RegisterVec2f registers a 2-component vector parameter.
func (n *Node) RegisterVec2f(name string, x, y float32, access Access) (*Parameter, error) {
	return n.registerParameter(name, NewVec2f(x, y), access, "vec2f", nil, nil, nil)
}

// RegisterVec3f registers a 3-component vector parameter.
func (n *Node) RegisterVec3f(name string, x, y, z float32, access Access) (*Parameter, error) {
	return n.registerParameter(name, NewVec3f(x, y, z), access, "vec3f", nil, nil, nil)
}

// RegisterVec4f registers a 4-component vector parameter.
func (n *Node) RegisterVec4f(name string, x, y, z, w float32, access Access) (*Parameter, error) {
	return n.registerParameter(name, NewVec4f(x, y, z, w), access, "vec4f", nil, nil, nil)
}

// EnterObject descends the registration cursor into objects/<name>,
// creating the nested container right away; a name already taken in the
// current container is rejected with ErrNameCollision. Subsequent RegisterX
// calls register under the new container
// until the matching ExitObject (§3's objects/<name>/… nesting).
func (n *Node) EnterObject(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	containerPath := append(append([]string(nil), n.curPath...), ObjectsKey)
	if err := n.checkNameFreeLocked(containerPath, name); err != nil {
		return err
	}

	path := objectPath(containerPath, name)
	if _, err := n.tree.Get(path); err != nil {
		n.tree.Set(path, NewMap(nil))
	}
	n.curPath = path
	return nil
}

// ExitObject pops the registration cursor back to the parent container. A
// no-op at the root.
func (n *Node) ExitObject() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.curPath) >= 2 {
		n.curPath = n.curPath[:len(n.curPath)-2]
	} else {
		n.curPath = nil
	}
}

// SetNodeLocation updates the reserved _location parameter (§3).
func (n *Node) SetNodeLocation(x, y, z float32) {
	n.EmitTreeMutation([]string{RootLocation}, NewVec3f(x, y, z))
}

// SetNodeOrientation updates the reserved _orientation parameter, expressed
// as a quaternion (§3).
func (n *Node) SetNodeOrientation(x, y, z, w float32) {
	n.EmitTreeMutation([]string{RootOrientation}, NewVec4f(x, y, z, w))
}

// SetNodeScale updates the reserved _scale parameter (§3).
func (n *Node) SetNodeScale(x, y, z float32) {
	n.EmitTreeMutation([]string{RootScale}, NewVec3f(x, y, z))
}

// SetNodeMatrix updates the reserved _matrix parameter with a flattened
// transform matrix. Stored as a list since no fixed-arity vector kind fits a
// 4x4 matrix (§3).
func (n *Node) SetNodeMatrix(values []float32) {
	list := make([]Value, len(values))
	for i, f := range values {
		list[i] = NewFloat(float64(f))
	}
	n.EmitTreeMutation([]string{RootMatrix}, NewList(list))
}
