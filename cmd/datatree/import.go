package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"datatree/internal/blob"
	"datatree/internal/sources"
	"datatree/internal/sources/blobtree"
	"datatree/internal/sources/catalog"
	"datatree/internal/sources/sqlcatalog"
)

// catalogArg picks the catalog document from the argument or the config.
func catalogArg(s *session, args []string) (*catalog.Document, string, error) {
	path := s.cfg.Source.Catalog
	if len(args) == 1 {
		path = args[0]
	}
	doc, err := catalog.DecodeFile(path)
	if err != nil {
		return nil, "", err
	}
	return doc, path, nil
}

func newImportCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "import [catalog]",
		Short: "Replace the SQL catalog with a catalog document",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			doc, path, err := catalogArg(s, args)
			if err != nil {
				return err
			}
			reg, err := sources.Registry(s.cfg.Source.Datatypes)
			if err != nil {
				return err
			}
			sqlCfg := s.cfg.Source.SQL
			db, err := sqlcatalog.Open(cmd.Context(), sqlCfg.Driver, sqlCfg.DSN, sqlcatalog.WithRegistry(reg))
			if err != nil {
				return err
			}
			defer func() { _ = db.Close() }()
			if err := db.Import(cmd.Context(), doc); err != nil {
				return err
			}
			s.logger.WithField("catalog", path).WithField("sql_driver", sqlCfg.Driver).Info("catalog imported")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "imported %s into %s\n", path, sqlCfg.DSN)
			return err
		},
	}
}

func newPublishCmd(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "publish [catalog]",
		Short: "Write a catalog document into the blob store as a blob tree",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.settings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = s.Close() }()
			doc, path, err := catalogArg(s, args)
			if err != nil {
				return err
			}
			blobCfg := s.cfg.Source.Blob
			store, err := blob.Open(cmd.Context(), blobCfg.BlobConfig())
			if err != nil {
				return err
			}
			n, err := blobtree.Publish(cmd.Context(), store, blobCfg.Prefix, doc)
			if err != nil {
				return err
			}
			s.logger.WithField("catalog", path).WithField("objects", n).Info("catalog published")
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "published %d objects\n", n)
			return err
		},
	}
}
