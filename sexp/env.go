// Copyright 2025 The Taskrt Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package sexp

// Environment is one lexical frame. Lookups walk the parent chain;
// definitions mutate only the current frame. Closures hold a frame by
// reference, so frames may outlive the evaluation that created them.
type Environment struct {
	bindings map[Symbol]Value
	parent   *Environment
}

// NewEnvironment creates a frame with the given parent (nil for the
// global frame).
func NewEnvironment(parent *Environment) *Environment {
	return &Environment{
		bindings: make(map[Symbol]Value),
		parent:   parent,
	}
}

// Get resolves name, walking outward through enclosing frames.
func (e *Environment) Get(name Symbol) (Value, bool) {
	for env := e; env != nil; env = env.parent {
		if v, ok := env.bindings[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Define binds name in this frame, shadowing any outer binding.
func (e *Environment) Define(name Symbol, v Value) {
	e.bindings[name] = v
}
