// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.


// Command gtpadapter puts a protocol adapter between a GTP controller and a
// GTP engine.
//
// The controller talks to gtpadapter on stdin and stdout. The engine command
// line follows "--":
//
//	gtpadapter --size 9 --fill-passes -- gnugo --mode gtp
//	gtpadapter --config gtpadapter.yaml --metrics-addr :9090
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "gtpadapter:", err)
		os.Exit(1)
	}
}
