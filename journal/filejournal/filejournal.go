// Package filejournal provides a filesystem-backed consent journal.
//
// Each identity's log is one append-only JSONL file (one entry per line)
// under the root directory, replayed into memory at open. This backend is
// offline and single-process: it is what the daemon uses for durability, not
// a multi-writer store.
package filejournal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"xdao.co/consent/consent"
	"xdao.co/consent/journal"
	"xdao.co/consent/journal/memjournal"
)

const logSuffix = ".jsonl"

// Journal is a durable journal layered over the in-memory backend: the file
// is the source of truth, memory serves reads and fan-out.
type Journal struct {
	dir string
	mem *memjournal.Journal

	// mu serializes file appends so interleaved publishes cannot tear lines.
	mu sync.Mutex
}

var _ journal.Journal = (*Journal)(nil)

// New opens (creating if needed) a journal root directory and replays every
// log file found in it.
func New(dir string) (*Journal, error) {
	if dir == "" {
		return nil, errors.New("filejournal: root directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, err
	}
	j := &Journal{dir: dir, mem: memjournal.New()}
	if err := j.loadAll(); err != nil {
		return nil, err
	}
	return j, nil
}

func (j *Journal) Publish(ctx context.Context, identity string, entries []consent.Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	addr, err := consent.CanonicalAddress(identity)
	if err != nil {
		return journal.ErrInvalidIdentity
	}
	if len(entries) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, e := range entries {
		if err := enc.Encode(e); err != nil {
			return err
		}
	}

	// The lock covers both the file append and the memory publish so every
	// publish lands in the same position durably and live. Unlocking between
	// the two would let concurrent publishes interleave differently on disk
	// than in memory, and a reopen would then replay a different order.
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.appendLocked(addr, buf.Bytes()); err != nil {
		// Nothing reached memory: the consent is not recorded.
		return err
	}
	return j.mem.Publish(ctx, addr, entries)
}

func (j *Journal) FetchAll(ctx context.Context, identity string) ([]consent.Entry, error) {
	return j.mem.FetchAll(ctx, identity)
}

func (j *Journal) Subscribe(ctx context.Context, identity string) (journal.Subscription, error) {
	return j.mem.Subscribe(ctx, identity)
}

func (j *Journal) pathFor(addr string) string {
	return filepath.Join(j.dir, addr+logSuffix)
}

func (j *Journal) appendLocked(addr string, lines []byte) error {
	f, err := os.OpenFile(j.pathFor(addr), os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(lines); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (j *Journal) loadAll() error {
	dirEntries, err := os.ReadDir(j.dir)
	if err != nil {
		return err
	}
	ctx := context.Background()
	for _, de := range dirEntries {
		name := de.Name()
		if de.IsDir() || !strings.HasSuffix(name, logSuffix) {
			continue
		}
		addr, err := consent.CanonicalAddress(strings.TrimSuffix(name, logSuffix))
		if err != nil {
			// Foreign files in the root are left alone.
			continue
		}
		entries, err := readLog(filepath.Join(j.dir, name))
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			continue
		}
		if err := j.mem.Publish(ctx, addr, entries); err != nil {
			return err
		}
	}
	return nil
}

func readLog(path string) ([]consent.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []consent.Entry
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		var e consent.Entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn tail write must not lose the rest of the history.
			continue
		}
		out = append(out, e)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
