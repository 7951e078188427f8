// SPDX-License-Identifier: MPL-2.0

package main

import cmd "dnaforge/cmd/dnaforge"

func main() {
	cmd.Execute()
}
