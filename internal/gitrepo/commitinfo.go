package gitrepo

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jmcdonald-ut/gitmem/internal/models"
)

// Unlikely-to-collide separators for the custom git log format below:
// record separator between commits, unit separator between fields.
const (
	recordSep = "\x1e"
	unitSep   = "\x1f"
)

// metaFormat emits one record per commit: hash, author name, author email,
// ISO-8601 author date with offset, then the raw message body. %B may
// itself contain newlines; that is fine since we split on recordSep/unitSep,
// not on newlines.
const metaFormat = recordSep + "%H" + unitSep + "%an" + unitSep + "%ae" + unitSep + "%aI" + unitSep + "%B"

// CommitInfoBatch returns full metadata and file lists for each hash,
// preserving the input order. It issues at most two git subprocesses per
// chunk of up to 500 hashes: one for metadata + numstat, one for
// name-status (additions/deletions and change-type live in separate git
// output modes and cannot be requested in a single invocation).
func (a *Adapter) CommitInfoBatch(ctx context.Context, hashes []string) ([]models.RawCommit, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	byHash := make(map[string]*models.RawCommit, len(hashes))
	order := make([]string, 0, len(hashes))

	for _, group := range chunk(hashes, maxHashesPerChunk) {
		stdin := strings.Join(group, "\n") + "\n"

		metaOut, err := a.runWithStdin(ctx, stdin,
			"log", "--no-walk", "--stdin", "--format="+metaFormat, "--numstat")
		if err != nil {
			return nil, fmt.Errorf("fetch commit metadata: %w", err)
		}
		parseMetaAndNumstat(string(metaOut), byHash, &order)

		statusOut, err := a.runWithStdin(ctx, stdin,
			"log", "--no-walk", "--stdin", "--format="+recordSep+"%H", "--name-status")
		if err != nil {
			return nil, fmt.Errorf("fetch commit name-status: %w", err)
		}
		applyNameStatus(string(statusOut), byHash)
	}

	result := make([]models.RawCommit, 0, len(hashes))
	for _, h := range hashes {
		if rc, ok := byHash[h]; ok {
			result = append(result, *rc)
		}
	}
	return result, nil
}

func parseMetaAndNumstat(output string, byHash map[string]*models.RawCommit, order *[]string) {
	records := strings.Split(output, recordSep)
	for _, rec := range records {
		if strings.TrimSpace(rec) == "" {
			continue
		}
		parts := strings.SplitN(rec, unitSep, 5)
		if len(parts) < 5 {
			continue
		}
		hash := parts[0]
		committedAt, _ := time.Parse(time.RFC3339, strings.TrimSpace(parts[3]))

		// parts[4] is "<message>\n<numstat lines>". The numstat lines start
		// right after the message body that %B produced (which itself ends
		// with a trailing newline from git).
		messageAndStat := parts[4]
		message, statLines := splitMessageFromNumstat(messageAndStat)

		rc := &models.RawCommit{
			Hash:        hash,
			AuthorName:  parts[1],
			AuthorEmail: parts[2],
			CommittedAt: committedAt,
			Message:     strings.TrimRight(message, "\n"),
		}
		for _, line := range statLines {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fields := strings.SplitN(line, "\t", 3)
			if len(fields) != 3 {
				continue
			}
			add, _ := strconv.Atoi(fields[0])
			del, _ := strconv.Atoi(fields[1])
			rc.Files = append(rc.Files, models.RawCommitFile{
				Path:      fields[2],
				Additions: add,
				Deletions: del,
			})
		}
		byHash[hash] = rc
		*order = append(*order, hash)
	}
}

// splitMessageFromNumstat separates the commit message from the trailing
// numstat lines. Numstat lines are tab-separated triples
// ("<add>\t<del>\t<path>" or "-\t-\t<path>" for binary); the message is
// everything before the first such line.
func splitMessageFromNumstat(s string) (message string, statLines []string) {
	lines := strings.Split(s, "\n")
	splitAt := len(lines)
	for i, line := range lines {
		if isNumstatLine(line) {
			splitAt = i
			break
		}
	}
	return strings.Join(lines[:splitAt], "\n"), lines[splitAt:]
}

func isNumstatLine(line string) bool {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) != 3 {
		return false
	}
	if fields[0] == "-" {
		return true
	}
	_, err := strconv.Atoi(fields[0])
	return err == nil
}

func applyNameStatus(output string, byHash map[string]*models.RawCommit) {
	records := strings.Split(output, recordSep)
	for _, rec := range records {
		rec = strings.TrimSpace(rec)
		if rec == "" {
			continue
		}
		lines := strings.Split(rec, "\n")
		hash := strings.TrimSpace(lines[0])
		rc, ok := byHash[hash]
		if !ok {
			continue
		}
		statusByPath := make(map[string]string, len(lines)-1)
		for _, line := range lines[1:] {
			if strings.TrimSpace(line) == "" {
				continue
			}
			fields := strings.Split(line, "\t")
			if len(fields) < 2 {
				continue
			}
			status := fields[0][:1] // collapse R100/C100 to R/C
			path := fields[len(fields)-1]
			statusByPath[path] = status
		}
		for i := range rc.Files {
			if st, ok := statusByPath[rc.Files[i].Path]; ok {
				rc.Files[i].ChangeType = st
			} else if rc.Files[i].ChangeType == "" {
				rc.Files[i].ChangeType = "M"
			}
		}
	}
}
