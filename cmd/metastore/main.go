// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command metastore is the CLI for the versioned-entity store.
//
// It manages named entities through their Draft, Final, and Retired
// lifecycle against a local database directory.
//
// Usage:
//
//	metastore create --type ActivityTemplate --library Sponsor "Blood Pressure"
//	metastore get --type ActivityTemplate <uid>
//	metastore approve --type ActivityTemplate <uid>
//	metastore history --type ActivityTemplate <uid>
//	metastore audit --type ActivityTemplate
package main

import (
	"log"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatalf("Error executing command: %v", err)
	}
}
