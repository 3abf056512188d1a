// Copyright (C) 2025 Metastore Systems (oss@metastorehq.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/repository"
)

// transition runs one lifecycle action against an entity retrieved for
// update and saves the result.
func transition(uid string, act func(item *repository.BasicItem, now time.Time) error) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		return repo.WithUpdate(ctx, func(txn *graph.Txn) error {
			e, err := repo.FindByUIDForUpdate(ctx, txn, uid)
			if err != nil {
				return err
			}
			if err := act(e.Item, time.Now().UTC()); err != nil {
				return err
			}
			if err := repo.Save(ctx, txn, e); err != nil {
				return err
			}
			printItem(e.Item)
			return nil
		})
	})
}

func runApprove(cmd *cobra.Command, args []string) error {
	return transition(args[0], func(item *repository.BasicItem, now time.Time) error {
		return item.Approve(author, "approved", now)
	})
}

func runNewVersion(cmd *cobra.Command, args []string) error {
	return transition(args[0], func(item *repository.BasicItem, now time.Time) error {
		return item.NewVersion(author, "new version", now)
	})
}

func runRetire(cmd *cobra.Command, args []string) error {
	return transition(args[0], func(item *repository.BasicItem, now time.Time) error {
		return item.Inactivate(author, "retired", now)
	})
}

func runReactivate(cmd *cobra.Command, args []string) error {
	return transition(args[0], func(item *repository.BasicItem, now time.Time) error {
		return item.Reactivate(author, "reactivated", now)
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
			e, err := repo.FindByUIDForUpdate(ctx, txn, args[0])
			if err != nil {
				return err
			}
			if err := e.Item.SoftDelete(); err != nil {
				return err
			}
			return repo.Save(ctx, txn, e)
		})
		if err != nil {
			return err
		}
		fmt.Printf("%s deleted\n", args[0])
		return nil
	})
}
