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

	"github.com/metastorehq/metastore/pkg/logging"
	"github.com/metastorehq/metastore/pkg/validation"
	"github.com/metastorehq/metastore/services/metastore/cache"
	"github.com/metastorehq/metastore/services/metastore/graph"
	"github.com/metastorehq/metastore/services/metastore/repository"
	"github.com/metastorehq/metastore/services/metastore/storage/badger"
	"github.com/metastorehq/metastore/services/metastore/versioning"
)

type basicRepo = repository.Repository[*repository.BasicItem]

// withRepo opens the configured store, builds a repository for the
// --type flag, runs fn, and tears everything down.
func withRepo(fn func(ctx context.Context, repo *basicRepo) error) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Log.Level),
		LogDir:  cfg.Log.Dir,
		Service: "metastore",
		JSON:    cfg.Log.JSON,
	})
	defer logger.Close()

	var store *graph.Store
	var err error
	if cfg.Store.InMemory {
		store, err = graph.OpenInMemory(logger.Slog())
	} else {
		storeCfg := badger.DefaultConfig(cfg.Store.Path)
		storeCfg.SyncWrites = cfg.Store.SyncWrites
		storeCfg.GCInterval = cfg.Store.GCInterval
		storeCfg.Logger = logger.Slog()
		store, err = graph.Open(storeCfg, logger.Slog())
	}
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer store.Close()

	opts := []repository.Option{repository.WithLogger(logger.Slog())}
	if cfg.Cache.Enabled {
		opts = append(opts, repository.WithCache(cache.New(cache.Options{
			MaxEntries: cfg.Cache.MaxEntries,
			TTL:        cfg.Cache.TTL,
		})))
	}
	repo := repository.New[*repository.BasicItem](store, repository.BasicDomain{Type: entityType}, opts...)

	return fn(context.Background(), repo)
}

func printItem(item *repository.BasicItem) {
	meta := item.Metadata()
	fmt.Printf("%s  %s  %s %s  by %s  %s\n",
		item.UID(), item.Name(), meta.Version(), meta.Status.String(),
		meta.Author, meta.StartDate.Format(time.RFC3339))
}

func runCreate(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		if err := validation.ValidateLibraryName(libraryName); err != nil {
			return err
		}
		// A library created here starts editable; an existing library
		// node keeps its stored flag.
		library := versioning.Library{Name: libraryName, IsEditable: true}
		item, err := repository.NewBasicItem(args[0], library, author, time.Now().UTC())
		if err != nil {
			return err
		}
		editable := repository.NewEditable(item)
		err = repo.WithUpdate(ctx, func(txn *graph.Txn) error {
			if err := repo.EnsureLibrary(txn, library); err != nil {
				return err
			}
			return repo.Save(ctx, txn, editable)
		})
		if err != nil {
			return err
		}
		printItem(editable.Item)
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		var opts []repository.FindOption
		if atVersion != "" {
			opts = append(opts, repository.AtVersion(atVersion))
		}
		if atStatus != "" {
			status, err := versioning.ParseStatus(atStatus)
			if err != nil {
				return err
			}
			opts = append(opts, repository.WithStatus(status))
		}
		return repo.WithView(ctx, func(txn *graph.Txn) error {
			got, err := repo.FindByUID(ctx, txn, args[0], opts...)
			if err != nil {
				return err
			}
			printItem(got.Item)
			return nil
		})
	})
}

func runList(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		var opts []repository.ListOption
		if atStatus != "" {
			status, err := versioning.ParseStatus(atStatus)
			if err != nil {
				return err
			}
			opts = append(opts, repository.InStatus(status))
		}
		if libraryName != "" {
			opts = append(opts, repository.InLibrary(libraryName))
		}
		return repo.WithView(ctx, func(txn *graph.Txn) error {
			all, err := repo.FindAll(ctx, txn, opts...)
			if err != nil {
				return err
			}
			for _, item := range all {
				printItem(item.Item)
			}
			fmt.Printf("%d entities\n", len(all))
			return nil
		})
	})
}

func runEdit(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		err := repo.WithUpdate(ctx, func(txn *graph.Txn) error {
			e, err := repo.FindByUIDForUpdate(ctx, txn, args[0])
			if err != nil {
				return err
			}
			if err := e.Item.EditDraft(author, changeDesc, time.Now().UTC()); err != nil {
				return err
			}
			e.Item.Rename(args[1])
			if err := repo.Save(ctx, txn, e); err != nil {
				return err
			}
			printItem(e.Item)
			return nil
		})
		return err
	})
}

func runHistory(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		return repo.WithView(ctx, func(txn *graph.Txn) error {
			rows, err := repo.VersionHistory(ctx, txn, args[0])
			if err != nil {
				return err
			}
			for _, row := range rows {
				end := row.Fields[repository.PropEndDate]
				if end == "" {
					end = "current"
				}
				fmt.Printf("%s %s  %q  by %s  %s -> %s  %s\n",
					row.Meta.Version(), row.Meta.Status.String(),
					row.Fields[repository.PropName], row.Meta.Author,
					row.Meta.StartDate.Format(time.RFC3339), end,
					row.Meta.ChangeDescription)
			}
			return nil
		})
	})
}

func runAudit(cmd *cobra.Command, args []string) error {
	return withRepo(func(ctx context.Context, repo *basicRepo) error {
		return repo.WithView(ctx, func(txn *graph.Txn) error {
			items, total, err := repo.RetrieveAuditTrail(ctx, txn, page, pageSize, true)
			if err != nil {
				return err
			}
			for _, item := range items {
				printItem(item.Item)
			}
			fmt.Printf("page %d of %d rows\n", page, total)
			return nil
		})
	})
}
