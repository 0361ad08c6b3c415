// Copyright 2025 Microsoft Corporation
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

// Package engineerror classifies the run-aborting error kinds the bulk
// failover engine can raise, so a caller can branch with errors.As
// instead of string matching.
package engineerror

import "fmt"

// Class identifies which stage of the run raised the error.
type Class string

const (
	ClassConfiguration Class = "configuration"
	ClassPreFlight     Class = "preflight"
	ClassDiscovery     Class = "discovery"
	ClassCancelled     Class = "cancelled"
)

// Error wraps a run-aborting failure with its Class.
type Error struct {
	Class Class
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Class, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New wraps err with the given class.
func New(class Class, err error) *Error {
	return &Error{Class: class, Err: err}
}

// Newf formats a message and wraps it with the given class.
func Newf(class Class, format string, args ...any) *Error {
	return &Error{Class: class, Err: fmt.Errorf(format, args...)}
}
