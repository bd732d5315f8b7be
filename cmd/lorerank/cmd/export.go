package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/lorerank/internal/corpus"
	lerrors "github.com/Aman-CERP/lorerank/internal/errors"
	"github.com/Aman-CERP/lorerank/internal/output"
	"github.com/Aman-CERP/lorerank/internal/store"
)

// exportOptions holds CLI flags for export.
type exportOptions struct {
	corpusSQLite string
	corpusJSON   string
	snapshot     string
	faiss        string
	model        string
}

func newExportCmd(g *globalOptions) *cobra.Command {
	var opts exportOptions

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Convert the loaded artifacts to another format",
		Long: `Load the configured corpus and vector index and write them in other
formats: the corpus as SQLite or JSON, the vectors as a gob snapshot (which
records the embedding model name) or a FAISS IndexFlatL2 file.

Examples:
  lorerank export --corpus-sqlite data/corpus.db
  lorerank export --snapshot data/vectors.snap --model all-mpnet-base-v2`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, g, opts)
		},
	}

	cmd.Flags().StringVar(&opts.corpusSQLite, "corpus-sqlite", "", "Write the corpus to this SQLite database")
	cmd.Flags().StringVar(&opts.corpusJSON, "corpus-json", "", "Write the corpus to this JSON file")
	cmd.Flags().StringVar(&opts.snapshot, "snapshot", "", "Write the vectors to this snapshot file")
	cmd.Flags().StringVar(&opts.faiss, "faiss", "", "Write the vectors to this FAISS IndexFlatL2 file")
	cmd.Flags().StringVar(&opts.model, "model", "", "Model name recorded in the snapshot (default: embeddings.model)")

	return cmd
}

func runExport(cmd *cobra.Command, g *globalOptions, opts exportOptions) error {
	if opts.corpusSQLite == "" && opts.corpusJSON == "" && opts.snapshot == "" && opts.faiss == "" {
		return fmt.Errorf("nothing to export: pass --corpus-sqlite, --corpus-json, --snapshot or --faiss")
	}

	cfg, err := g.loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	out := output.New(cmd.OutOrStdout())

	if opts.corpusSQLite != "" || opts.corpusJSON != "" {
		c, err := loadCorpus(ctx, cfg)
		if err != nil {
			return err
		}
		if opts.corpusSQLite != "" {
			if err := withLock(opts.corpusSQLite, func() error {
				db, err := corpus.OpenSQLite(opts.corpusSQLite)
				if err != nil {
					return err
				}
				defer func() { _ = db.Close() }()
				return corpus.SaveSQLite(ctx, db, c)
			}); err != nil {
				return err
			}
			out.Successf("Wrote %d passages to %s", c.Len(), opts.corpusSQLite)
		}
		if opts.corpusJSON != "" {
			if err := withLock(opts.corpusJSON, func() error {
				return writeFile(opts.corpusJSON, c.WriteJSON)
			}); err != nil {
				return err
			}
			out.Successf("Wrote %d passages to %s", c.Len(), opts.corpusJSON)
		}
	}

	if opts.snapshot != "" || opts.faiss != "" {
		vec, err := loadVectors(cfg)
		if err != nil {
			return err
		}
		if opts.snapshot != "" {
			model := opts.model
			if model == "" && vec.ModelName() == "" {
				model = cfg.Embeddings.Model
			}
			if model != "" {
				vec.WithModelName(model)
			}
			if err := store.SaveSnapshot(opts.snapshot, vec); err != nil {
				return err
			}
			out.Successf("Wrote %d vectors (%d dims, model %s) to %s", vec.Len(), vec.Dim(), vec.ModelName(), opts.snapshot)
		}
		if opts.faiss != "" {
			if err := withLock(opts.faiss, func() error {
				return writeFile(opts.faiss, func(w io.Writer) error { return store.WriteFaissFlat(w, vec) })
			}); err != nil {
				return err
			}
			out.Successf("Wrote %d vectors to %s", vec.Len(), opts.faiss)
		}
	}
	return nil
}

// withLock runs fn while holding the artifact's file lock.
func withLock(path string, fn func() error) error {
	lock := store.NewFileLock(path)
	ok, err := lock.TryLock()
	if err != nil {
		return err
	}
	if !ok {
		return lerrors.New(lerrors.ErrCodeIndexLocked, "artifact is being written by another process", nil).
			WithDetail("path", path)
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

func writeFile(path string, write func(w io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
