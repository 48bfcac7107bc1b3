// Copyright 2025 The syncrelay Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("syncrelay - Multi-Device Synchronization Relay")
	fmt.Println("==============================================")
	fmt.Println()
	fmt.Println("syncrelay keeps per-user application state consistent across any number of")
	fmt.Println("simultaneously connected devices, using vector clocks for causal ordering and")
	fmt.Println("deterministic last-writer-wins resolution for concurrent edits.")
	fmt.Println()
	fmt.Println("Run the relay server:")
	fmt.Println()
	fmt.Println("  go run ./cmd/relayd")
	fmt.Println()
	fmt.Println("Configuration (environment):")
	fmt.Println("  PORT         - listen port (default 8080)")
	fmt.Println("  RELAY_STORE  - postgres | bolt | memory (default memory)")
	fmt.Println("  DATABASE_URL - Postgres DSN when RELAY_STORE=postgres")
	fmt.Println("  BOLT_PATH    - database file when RELAY_STORE=bolt")
	fmt.Println("  JWT_SECRET   - HMAC secret for device tokens")
}
