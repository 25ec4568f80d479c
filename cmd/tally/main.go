// Copyright © 2026 Courseware Labs - All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.

// Command tally is the assessment aggregation engine CLI: seed course
// definitions, compute hierarchical metrics, propagate auto-computed
// completions, and watch course files for changes.
package main

func main() {
	Execute()
}
