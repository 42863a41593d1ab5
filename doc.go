// Package rmx maintains a local mirror of a content-addressed document
// cloud and exports stored documents into portable files.
//
// The remote store is a single root pointer naming the current global
// snapshot plus immutable blobs addressed by content hash. Sync compares
// the remote root hash against the cached one: on a match the cached
// hierarchy is reused with zero blob fetches, on a mismatch the root index
// is decoded, per-entry metadata is resolved concurrently, and the durable
// cache record is replaced atomically.
//
// Basic usage:
//
//	client, _ := rmx.Open(rmx.WithToken(token))
//
//	res, _ := client.Sync(ctx)
//	fmt.Println(res.Hierarchy.Len(), "entries, root", res.RootHash)
//
//	// Resolve by name path and export.
//	node, _ := client.Lookup("/Work/Notes")
//	client.Export(ctx, node.Entry.ID, "./Notes")
//
//	// Mirror a whole folder.
//	folder, _ := client.Lookup("/Work")
//	report, _ := client.ExportTree(ctx, folder, "./out")
//	fmt.Println(report.Completed(), "exported,", report.FailedCount(), "failed")
//
// PDF and EPUB documents export as a direct copy of their content blob;
// native notebooks export as a .rmdoc archive (a plain zip of the
// document's component blobs). Entries whose parent cannot be resolved
// appear under the synthetic trash branch rather than being dropped.
package rmx
