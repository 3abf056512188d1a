// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"log"

	"github.com/spf13/cobra"

	"github.com/metastorehq/metastore/pkg/validation"
	"github.com/metastorehq/metastore/services/metastore/config"
)

// --- Global Command Variables ---
var (
	configPath  string
	entityType  string
	libraryName string
	author      string
	atVersion   string
	atStatus    string
	changeDesc  string
	page        int
	pageSize    int

	cfg config.Config

	rootCmd = &cobra.Command{
		Use:   "metastore",
		Short: "A cli to manage versioned entities in a local metastore",
		Long: `Metastore stores named entities with full version history:
				drafts, approvals, retirements, and an audit trail,
				backed by a local embedded database.`,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if err := validation.ValidateTypeName(entityType); err != nil {
				log.Fatalf("Error: %v", err)
			}
			loaded, err := config.Load(configPath)
			if err != nil {
				log.Fatalf("Error loading configuration: %v", err)
			}
			cfg = loaded
		},
	}

	createCmd = &cobra.Command{
		Use:   "create [name]",
		Short: "Create a new entity as version 0.1 Draft",
		Args:  cobra.ExactArgs(1),
		RunE:  runCreate, // Defined in cmd_entity.go
	}
	getCmd = &cobra.Command{
		Use:   "get [uid]",
		Short: "Show an entity, optionally at a version, status, or both",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet, // Defined in cmd_entity.go
	}
	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List entities of a type, optionally filtered by status or library",
		RunE:  runList, // Defined in cmd_entity.go
	}
	editCmd = &cobra.Command{
		Use:   "edit [uid] [new name]",
		Short: "Amend a draft entity's content",
		Args:  cobra.ExactArgs(2),
		RunE:  runEdit, // Defined in cmd_entity.go
	}
	approveCmd = &cobra.Command{
		Use:   "approve [uid]",
		Short: "Approve a draft entity into Final",
		Args:  cobra.ExactArgs(1),
		RunE:  runApprove, // Defined in cmd_lifecycle.go
	}
	newVersionCmd = &cobra.Command{
		Use:   "new-version [uid]",
		Short: "Start a new draft from an approved entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runNewVersion, // Defined in cmd_lifecycle.go
	}
	retireCmd = &cobra.Command{
		Use:   "retire [uid]",
		Short: "Retire an approved entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runRetire, // Defined in cmd_lifecycle.go
	}
	reactivateCmd = &cobra.Command{
		Use:   "reactivate [uid]",
		Short: "Bring a retired entity back into use",
		Args:  cobra.ExactArgs(1),
		RunE:  runReactivate, // Defined in cmd_lifecycle.go
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [uid]",
		Short: "Soft delete an entity that was never approved",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete, // Defined in cmd_lifecycle.go
	}
	historyCmd = &cobra.Command{
		Use:   "history [uid]",
		Short: "Show the full version history of an entity",
		Args:  cobra.ExactArgs(1),
		RunE:  runHistory, // Defined in cmd_entity.go
	}
	auditCmd = &cobra.Command{
		Use:   "audit",
		Short: "Page through every version of every entity of a type",
		RunE:  runAudit, // Defined in cmd_entity.go
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "metastore.yaml", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&entityType, "type", "", "Entity type, e.g. ActivityTemplate (required)")
	rootCmd.PersistentFlags().StringVar(&author, "author", "cli", "Author recorded on version changes")
	_ = rootCmd.MarkPersistentFlagRequired("type")

	createCmd.Flags().StringVar(&libraryName, "library", "Sponsor", "Owning library of the new entity")
	getCmd.Flags().StringVar(&atVersion, "version", "", "Exact version to show, e.g. 1.0")
	getCmd.Flags().StringVar(&atStatus, "status", "", "Status to show: Draft, Final, or Retired")
	listCmd.Flags().StringVar(&atStatus, "status", "", "Only list entities with a version in this status")
	listCmd.Flags().StringVar(&libraryName, "library", "", "Only list entities owned by this library")
	editCmd.Flags().StringVar(&changeDesc, "message", "edited", "Change description recorded on the new draft")
	auditCmd.Flags().IntVar(&page, "page", 1, "Page number, starting at 1")
	auditCmd.Flags().IntVar(&pageSize, "page-size", 20, "Rows per page, 0 for all")

	rootCmd.AddCommand(createCmd, getCmd, listCmd, editCmd,
		approveCmd, newVersionCmd, retireCmd, reactivateCmd, deleteCmd,
		historyCmd, auditCmd)
}
