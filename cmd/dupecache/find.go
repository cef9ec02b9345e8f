package main

import (
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	dupecache "github.com/mattkeenan/dupecache/pkg"
)

// exitInterrupted follows the shell convention for SIGINT
const exitInterrupted = 130

func (c *CLI) newFindCmd() *cobra.Command {
	var hashSample, contentSample, output string
	var ignore []string

	cmd := &cobra.Command{
		Use:   "find [list-file]",
		Short: "List duplicates among the paths in list-file (stdin when omitted)",
		Long: `Reads one absolute path per line (only the first tab-separated field is used)
and writes one "original <TAB> duplicate <TAB> hash <TAB> size" line per duplicate.
The original of each set of identical files is its lexicographically smallest path.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := c.options()
			if err != nil {
				return err
			}
			if hashSample != "" {
				if opts.HashSampleSize, err = dupecache.ParseHumanSize(hashSample); err != nil {
					return fmt.Errorf("invalid --hash-sample: %w", err)
				}
			}
			if contentSample != "" {
				if opts.ContentSampleSize, err = dupecache.ParseHumanSize(contentSample); err != nil {
					return fmt.Errorf("invalid --content-sample: %w", err)
				}
			}

			opts.IgnorePatterns = append(opts.IgnorePatterns, ignore...)

			paths, err := c.readCandidates(args)
			if err != nil {
				return err
			}

			router := opts.NewRouter()
			finder, err := opts.NewFinder(router)
			if err != nil {
				return err
			}

			result := finder.FindDuplicates(c.shutdownChan(), paths, opts.HashSampleSize, opts.ContentSampleSize)

			if err := c.writeRows(output, result.Rows); err != nil {
				return err
			}
			c.printSummary(result)

			if result.Cancelled {
				c.exitCode = exitInterrupted
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&hashSample, "hash-sample", "", "bytes hashed at head and tail of each file (e.g. 1M)")
	cmd.Flags().StringVar(&contentSample, "content-sample", "", "bytes compared at head and tail of each file (e.g. 16M)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the table to this file instead of stdout")
	cmd.Flags().StringArrayVar(&ignore, "ignore", nil, "skip candidates matching this regular expression (repeatable)")

	return cmd
}

// readCandidates reads the candidate list from the named file, or stdin for none or "-"
func (c *CLI) readCandidates(args []string) ([]string, error) {
	if len(args) == 0 || args[0] == "-" {
		return dupecache.ReadCandidateList(c.stdin)
	}

	file, err := os.Open(args[0])
	if err != nil {
		return nil, fmt.Errorf("failed to open candidate list: %w", err)
	}
	defer file.Close()

	return dupecache.ReadCandidateList(file)
}

// writeRows writes the duplicate table to output, or stdout when output is empty
func (c *CLI) writeRows(output string, rows []dupecache.DuplicateRow) error {
	var w io.Writer = c.stdout
	if output != "" {
		file, err := os.Create(output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer file.Close()
		w = file
	}
	return dupecache.WriteRows(w, rows)
}

// printSummary reports row and failure counts and the space duplicates take
func (c *CLI) printSummary(result *dupecache.FindResult) {
	var wasted uint64
	for _, row := range result.Rows {
		wasted += uint64(row.Size)
	}

	state := "complete"
	if result.Cancelled {
		state = "interrupted"
	}
	fmt.Fprintf(c.stderr, "%s: %s rows (%s in duplicates), %s failed or ignored\n",
		state, humanize.Comma(int64(len(result.Rows))), humanize.IBytes(wasted), humanize.Comma(int64(result.Failures)))
}
