// Package ingest implements the Ingest Pipeline: walk a directory tree,
// fingerprint each recognized audio file on a worker pool, and funnel the
// resulting posting batches through a single writer goroutine into the
// Index Store.
//
// Grounded on the teacher's main/commands.go (filepath.Walk + per-file
// try/continue) and the original Python source's builddb.py/
// builddb_threading.py (ThreadPoolExecutor across files, single
// insert_elements call consuming all results; build_database's
// as_completed + per-file try/except that logs and continues rather than
// aborting the batch).
package ingest

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"soundmark/internal/audio"
	"soundmark/internal/config"
	"soundmark/internal/dsp"
	"soundmark/internal/fingerprint"
	"soundmark/internal/logging"
	"soundmark/internal/peaks"
	"soundmark/internal/store"
)

var recognizedExt = map[string]bool{".wav": true, ".mp3": true}

// Result summarizes one ingest run for the CLI to report.
type Result struct {
	FilesSeen      int
	FilesIngested  int
	FilesFailed    int
	TotalPostings  int
	FailedFiles    []string
}

// job is one file queued for fingerprinting.
type job struct {
	path    string
	trackID string
	label   string
}

// workUnit is a completed fingerprinting result, handed to the writer.
type workUnit struct {
	batch store.AppendBatch
	path  string
}

// Run discovers every .wav/.mp3 file under root, fingerprints each on a
// worker pool sized by p.Workers, and funnels the resulting batches
// through a single writer goroutine into st. A single file's failure is
// logged and does not abort the run (spec §4.5 failure isolation); no
// partial postings from a failed file are ever committed, since a
// file's batch is only constructed after its pipeline completes
// successfully in full.
func Run(ctx context.Context, root string, st store.Store, p config.Params, replace bool) (Result, error) {
	log := logging.From(ctx)

	jobs, err := discover(root)
	if err != nil {
		return Result{}, err
	}

	res := Result{FilesSeen: len(jobs)}
	if len(jobs) == 0 {
		return res, nil
	}

	jobCh := make(chan job)
	workCh := make(chan workUnit, p.QueueDepth)

	var wg sync.WaitGroup
	var mu sync.Mutex

	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}

	// Workers: CPU-bound fingerprinting, fed from jobCh, producing into
	// the bounded workCh so a slow writer throttles fast fingerprinters.
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobCh {
				select {
				case <-ctx.Done():
					return
				default:
				}
				batch, err := fingerprintFile(j, p)
				if err != nil {
					log.Error("failed to process file", "path", j.path, "error", err)
					mu.Lock()
					res.FilesFailed++
					res.FailedFiles = append(res.FailedFiles, j.path)
					mu.Unlock()
					continue
				}
				select {
				case workCh <- workUnit{batch: batch, path: j.path}:
				case <-ctx.Done():
					return
				}
			}
		}()
	}

	// Single writer: applies batches in arrival order, serializing all
	// append_postings calls through one goroutine per spec §4.5/§5.
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		for wu := range workCh {
			if err := appendWithRetry(ctx, st, wu.batch, replace, p.MaxStoreRetry, log); err != nil {
				log.Error("failed to commit postings", "path", wu.path, "error", err)
				mu.Lock()
				res.FilesFailed++
				res.FailedFiles = append(res.FailedFiles, wu.path)
				mu.Unlock()
				continue
			}
			mu.Lock()
			res.FilesIngested++
			res.TotalPostings += len(wu.batch.Postings)
			mu.Unlock()
		}
	}()

	go func() {
		defer close(jobCh)
		for _, j := range jobs {
			select {
			case jobCh <- j:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(workCh)
	<-writerDone

	return res, nil
}

func discover(root string) ([]job, error) {
	var jobs []job
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !recognizedExt[ext] {
			return nil
		}
		base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		jobs = append(jobs, job{path: path, trackID: base, label: base})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking %s: %w", root, err)
	}
	return jobs, nil
}

func fingerprintFile(j job, p config.Params) (store.AppendBatch, error) {
	decoded, err := audio.Decode(j.path)
	if err != nil {
		return store.AppendBatch{}, err
	}

	channels := audio.ToMono(decoded, p)

	var postings []store.Posting
	for _, samples := range channels {
		spec, err := dsp.Compute(samples, decoded.SampleRate, p)
		if err != nil {
			return store.AppendBatch{}, err
		}
		pts := peaks.Extract(spec, p)
		pairs := fingerprint.Generate(pts, p)
		for _, pr := range pairs {
			postings = append(postings, store.Posting{Hash: uint32(pr.Hash), Offset: pr.Offset})
		}
	}

	return store.AppendBatch{
		Track:    store.Track{ID: j.trackID, Label: j.label},
		Postings: postings,
	}, nil
}

func appendWithRetry(ctx context.Context, st store.Store, batch store.AppendBatch, replace bool, maxRetries int, log interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}) error {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		err := st.AppendPostings(ctx, batch, replace)
		if err == nil {
			return nil
		}
		if err == store.ErrAlreadyExists {
			return err
		}
		lastErr = err
		log.Warn("store append failed, retrying", "track_id", batch.Track.ID, "attempt", attempt+1, "error", err)
		backoff := time.Duration(1<<uint(attempt)) * 100 * time.Millisecond
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return lastErr
}
