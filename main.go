// Copyright 2025 TachiWeb Contributors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("TachiWeb sync-merge engine")
	fmt.Println("==========================")
	fmt.Println()
	fmt.Println("This module merges sync reports produced by remote replicas into a local")
	fmt.Println("library store: per-field last-writer-wins conflict resolution, provisional")
	fmt.Println("id reconciliation, and dependency-ordered application inside one transaction.")
	fmt.Println()
	fmt.Println("Packages:")
	fmt.Println()
	fmt.Println("  syncmerge/   Core engine: entities, wire codec, resolver, field merge,")
	fmt.Println("               dependency-ordered applier, store adapter contract")
	fmt.Println("  syncsqlite/  SQLite store adapter (device-local library)")
	fmt.Println("  syncpg/      PostgreSQL store adapter (server-hosted library)")
	fmt.Println()
	fmt.Println("Example:")
	fmt.Println()
	fmt.Println("  cd examples/quickstart && go run .")
	fmt.Println()
}
