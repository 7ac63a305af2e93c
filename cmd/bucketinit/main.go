// Copyright (c) 2022-present, DiceDB contributors
// All rights reserved. Licensed under the BSD 3-Clause License. See LICENSE file in the project root for full license information.

package main

import (
	"github.com/sevenDatabase/bucketinit/cmd"
)

func main() {
	cmd.Execute()
}
