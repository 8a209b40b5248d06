// Package indexer turns document files into searchable knowledge base
// content.
//
// A file run hashes the file, skips it when the hash matches a finished
// previous run, and otherwise parses it into pages, stores the pages,
// chunks them, embeds the chunks and replaces the document's vectors.
//
//	idx, err := indexer.New(pool, vectors, emb, parser.New(), indexer.NewConfig(cfg))
//	doc, err := idx.IndexFile(ctx, "research", "/papers/attention.pdf", func(e indexer.Event) {
//	    fmt.Printf("%3.0f%% %s\n", e.Fraction*100, e.Message)
//	})
//
// # Incremental Indexing
//
// File change detection uses SHA-256 content hashing. A document's page
// count is written only after its vectors have been replaced, so a run
// interrupted anywhere before that point is redone in full the next time,
// even when the file did not change.
//
// # Folder Scans
//
// ScanFolder indexes every regular file directly inside
// <data_dir>/<base>/documents. Per-file failures are collected in the
// result and reported through progress; they never abort the scan. One scan
// per base runs at a time; a second one fails with ErrIndexingInProgress.
//
// # Concurrency
//
// Runs on the same file of the same base are serialized. With Workers
// greater than one, a scan indexes that many files at once.
package indexer
