package mcpserver

// Tool descriptions tell the client what each tool returns and how to read
// it.

func describeListClones() string {
	return `Lists the clones found so far in the ingested corpus.

USE WHEN:
- Checking whether a file copies code from earlier uploads
- Finding every place a block of code was pasted
- Reviewing the largest duplicated spans before a refactor

INTERPRETING RESULTS:
- source_name is the earlier file that already held the code
- source_start..source_end are original line numbers in that file, inclusive
- targets are the later files where the same code appeared, with their own line spans
- Blank lines and comments are ignored when matching, so spans may include them
- A clone is at least chunk_size non-blank lines long (5 by default)

RETURNS:
- clones: source span, targets, original_code
- total: number of clones before the limit was applied`
}

func describeCorpusStats() string {
	return `Reports how many files have been ingested and how many clones exist.

USE WHEN:
- Confirming that an upload was stored
- Tracking how duplication grows as files arrive

INTERPRETING RESULTS:
- files counts accepted files only; rejected uploads are not stored
- clones counts distinct source spans; one clone can have many targets

RETURNS:
- files, clones, targets`
}

func describeIngestFile() string {
	return `Adds one file to the corpus and reports the clones it contains.

USE WHEN:
- Checking new code against everything ingested before it
- Feeding files to the corpus without the HTTP server

INTERPRETING RESULTS:
- status accepted: the file was stored and compared against the corpus
- status rejected with reason unsupported_file_type: the name does not match the accepted patterns
- status rejected with reason already_processed: a file with this name is already stored
- clones lists spans of earlier files that this file repeats

RETURNS:
- name, status, reason, clones, loc, chunks, candidates`
}
