package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/conjunction-engine/internal/ingest"
)

var (
	fetchGroups []string
	loadFile    string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Refresh the catalog from Celestrak",
	Long:  "fetch pulls element-set groups from Celestrak and upserts every object into the catalog.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		groups := fetchGroups
		if len(groups) == 0 {
			groups = cfg.Fetch.Groups
		}

		fetcher := ingest.NewFetcher(ingest.FetcherOptions{
			BaseURL:   cfg.Fetch.BaseURL,
			UserAgent: cfg.Fetch.UserAgent,
			Timeout:   cfg.Fetch.Timeout,
			Interval:  cfg.Fetch.Interval,
		}, cliLogger())

		res, err := fetcher.FetchGroups(cmd.Context(), groups)
		if err != nil {
			return err
		}
		n, err := store.UpsertObjects(cmd.Context(), res.Objects)
		if err != nil {
			return fmt.Errorf("upsert objects: %w", err)
		}
		fmt.Printf("fetched %d objects from %v (%d lines skipped), upserted %d\n",
			len(res.Objects), groups, res.Skipped, n)
		return nil
	},
}

var loadCmd = &cobra.Command{
	Use:   "load",
	Short: "Load a YAML seed file into the catalog",
	Long:  "load reads objects from a seed file and upserts them, for demos and deployments where Celestrak is unreachable.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		objects, err := ingest.LoadSeed(loadFile)
		if err != nil {
			return err
		}
		n, err := store.UpsertObjects(cmd.Context(), objects)
		if err != nil {
			return fmt.Errorf("upsert objects: %w", err)
		}
		fmt.Printf("loaded %d objects from %s\n", n, loadFile)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringSliceVar(&fetchGroups, "groups", nil, "Celestrak groups to fetch; defaults to the configured groups")
	loadCmd.Flags().StringVar(&loadFile, "file", "", "Path to a seed YAML file")
	loadCmd.MarkFlagRequired("file")
}
