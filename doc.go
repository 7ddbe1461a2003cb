/*
Package pagedb implements an embedded, single-file, transactional
key-value store backed by a memory-mapped region.

We implement:

1. Ordered tables over byte-string keys, with point lookups and ascending
iteration.

2. Multimap tables, where each key holds a sorted, de-duplicated set of
values.

3. Transactions: a single exclusive writer with atomic, all-or-nothing
commits, and any number of concurrent readers pinned to immutable
snapshots.

# Technical Details

**Pages.**
The file is a fixed header region followed by an array of uniform pages.
Pages are referenced by page number, never by pointer, and a page is
immutable once a committed superblock can reach it: mutation always
allocates a fresh page and rewrites the parent (copy on write).

**Superblocks.**
Two superblock slots alternate at the head of the file. A commit writes
all new pages, syncs, writes the inactive slot with a higher transaction
id and an xxhash checksum, and syncs again. Opens trust the valid slot
with the higher transaction id, so a crash at any instant leaves the file
at either the last commit or the one before it, never a mixture.

**Master table.**
The superblock names the root of the master tree, which maps table names
to descriptors (table id, type, and that table's own tree root). Opening
a table registers it through a one-operation write transaction.

**Trees.**
Leaf and branch pages hold sorted variable-length cells:

	| type | nkeys | child ptrs | cell offsets | cells |

Values beyond a quarter page move to overflow page chains. Multimap
values are varbytes-encoded sorted sets stored through the same path.

**Reclamation.**
Pages superseded by a commit wait in a pending pool keyed by that
commit's transaction id and return to the free list once no read snapshot
older than the commit remains (the watermark). The free list persists as
a chain of free-list pages rewritten copy-on-write at every commit.
*/
package pagedb
