// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package version identifies this build of the node.
package version

import "fmt"

// Application is the version of a node binary.
type Application struct {
	Name  string
	Major int
	Minor int
	Patch int
}

// Current is the version of this build.
var Current = &Application{
	Name:  "bullshark",
	Major: 1,
	Minor: 0,
	Patch: 0,
}

// String returns the string representation of the version.
func (a *Application) String() string {
	return fmt.Sprintf("%s/%d.%d.%d", a.Name, a.Major, a.Minor, a.Patch)
}
