package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	dupecache "github.com/mattkeenan/dupecache/pkg"
)

func (c *CLI) newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init [dir]",
		Short: "Make dir (default: current directory) a cache root",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			dir, err := dirArg(args)
			if err != nil {
				return err
			}

			cache, err := opts.NewRouter().InitRoot(dir)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "cache root %s (%s)\n", cache.Root(), cache.CacheFile())
			return nil
		},
	}
}

func (c *CLI) newPruneCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prune [dir]",
		Short: "Drop stale records from the cache responsible for dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			dir, err := dirArg(args)
			if err != nil {
				return err
			}

			cache := opts.NewRouter().CacheFor(dir)
			removed := cache.Prune()
			if err := cache.Save(); err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%s: removed %s stale records, %s kept\n",
				cache.CacheFile(), humanize.Comma(int64(removed)), humanize.Comma(int64(cache.Stats().Records)))
			return nil
		},
	}
}

func (c *CLI) newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats [dir]",
		Short: "Show the cache responsible for dir",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			dir, err := dirArg(args)
			if err != nil {
				return err
			}

			cache := opts.NewRouter().CacheFor(dir)
			loadErr := cache.Load()

			root := cache.Root()
			if root == "" {
				root = "(default)"
			}
			fmt.Fprintf(c.stdout, "root:      %s\n", root)
			fmt.Fprintf(c.stdout, "file:      %s\n", cache.CacheFile())
			fmt.Fprintf(c.stdout, "algorithm: %s\n", opts.Algorithm.Name)
			if stored, err := dupecache.CacheFileAlgorithm(cache.CacheFile()); err == nil {
				fmt.Fprintf(c.stdout, "stored:    %s\n", stored.Name)
			} else if !errors.Is(err, os.ErrNotExist) {
				fmt.Fprintf(c.stdout, "stored:    unreadable (%v)\n", err)
			}
			if loadErr != nil {
				fmt.Fprintf(c.stdout, "records:   unreadable (%v)\n", loadErr)
				return nil
			}
			fmt.Fprintf(c.stdout, "records:   %s\n", humanize.Comma(int64(cache.Stats().Records)))
			return nil
		},
	}
}
