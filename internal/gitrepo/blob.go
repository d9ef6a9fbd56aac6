package gitrepo

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// FileRef identifies one file at one commit.
type FileRef struct {
	Hash string
	Path string
}

// FileContentsBatch returns the raw bytes of each ref's blob, omitting any
// ref whose blob is absent (deleted path, or the path simply didn't exist
// at that revision). Uses a single `git cat-file --batch` pipe per chunk:
// binary-safe, parses the header line, reads exactly size bytes, skips the
// single trailing newline git always appends.
func (a *Adapter) FileContentsBatch(ctx context.Context, refs []FileRef) (map[FileRef][]byte, error) {
	result := make(map[FileRef][]byte, len(refs))
	if len(refs) == 0 {
		return result, nil
	}

	for _, group := range chunk(refs, maxHashesPerChunk) {
		if err := a.catFileBatch(ctx, group, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *Adapter) catFileBatch(ctx context.Context, refs []FileRef, result map[FileRef][]byte) error {
	cmd := a.command(ctx, "cat-file", "--batch")

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("open cat-file stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("open cat-file stdout: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start git cat-file --batch: %w", err)
	}

	writeErrCh := make(chan error, 1)
	go func() {
		defer stdin.Close()
		var sb strings.Builder
		for _, ref := range refs {
			sb.WriteString(ref.Hash)
			sb.WriteString(":")
			sb.WriteString(ref.Path)
			sb.WriteString("\n")
		}
		_, err := io.WriteString(stdin, sb.String())
		writeErrCh <- err
	}()

	reader := bufio.NewReader(stdout)
	for _, ref := range refs {
		header, err := reader.ReadString('\n')
		if err != nil {
			break // stream ended early; remaining refs simply have no entry
		}
		header = strings.TrimRight(header, "\n")

		if strings.HasSuffix(header, " missing") {
			continue
		}

		// "<sha> <type> <size>"
		fields := strings.Fields(header)
		if len(fields) != 3 {
			continue
		}
		size, err := strconv.Atoi(fields[2])
		if err != nil {
			continue
		}

		buf := make([]byte, size)
		if _, err := io.ReadFull(reader, buf); err != nil {
			break
		}
		if _, err := reader.Discard(1); err != nil { // trailing newline git appends after every object
			break
		}
		result[ref] = buf
	}

	_ = cmd.Wait()
	if err := <-writeErrCh; err != nil {
		return fmt.Errorf("write cat-file requests: %w", err)
	}
	return nil
}
